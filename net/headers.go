package net

import (
	"net/http"
)

// Sets non-standard X-Forwarded-* Headers
// See https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers#proxies
type ForwardedHeaders struct {
	// Sets or appends request remote IP to the X-Forwarded-For header
	For bool
	// Sets or prepends request remote IP to the X-Forwarded-For header, overrides For
	PrependFor bool
	// Sets X-Forwarded-Host to the request host
	Host bool
	// Sets X-Forwarded-Proto value, "auto" detects it from the
	// connection of the incoming request
	Proto string
}

// Set sets the headers of the outgoing request, based on the incoming one.
// The two can be the same.
func (h *ForwardedHeaders) Set(out, in *http.Request) {
	if h.For || h.PrependFor {
		if addr := ClientIP(in); addr != "" {
			v := in.Header.Get("X-Forwarded-For")
			if v == "" {
				v = addr
			} else if h.PrependFor {
				v = addr + ", " + v
			} else {
				v = v + ", " + addr
			}
			out.Header.Set("X-Forwarded-For", v)
		}
	}

	if h.Host {
		out.Header.Set("X-Forwarded-Host", in.Host)
	}

	switch h.Proto {
	case "":
	case "auto":
		proto := "http"
		if in.TLS != nil {
			proto = "https"
		}
		out.Header.Set("X-Forwarded-Proto", proto)
	default:
		out.Header.Set("X-Forwarded-Proto", h.Proto)
	}
}
