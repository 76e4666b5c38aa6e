package metrics

import "net/http"

const unknownMethod = "_unknownmethod_"

// keeps the method label cardinality bounded
var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

func measuredMethod(m string) string {
	if knownMethods[m] {
		return m
	}

	return unknownMethod
}
