package routing

import (
	"errors"
	"fmt"
)

// ErrRouteNotFound is returned by Resolve when no configured prefix matches
// the request path.
var ErrRouteNotFound = errors.New("route not found")

type invalidDefinitionError string

func (e invalidDefinitionError) Error() string { return string(e) }
func (e invalidDefinitionError) Code() string  { return string(e) }

var (
	errEmptyPrefix     = invalidDefinitionError("empty_prefix")
	errInvalidPrefix   = invalidDefinitionError("invalid_prefix")
	errDuplicatePrefix = invalidDefinitionError("duplicate_prefix")
	errNoTargets       = invalidDefinitionError("no_targets")
	errInvalidTarget   = invalidDefinitionError("invalid_target")
	errInvalidRewrite  = invalidDefinitionError("invalid_rewrite")
	errInvalidTimeout  = invalidDefinitionError("invalid_timeout")
)

// WrapInvalidDefinitionReason annotates err with a machine readable reason
// that can be retrieved with InvalidDefinitionReason.
func WrapInvalidDefinitionReason(reason string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", invalidDefinitionError(reason), err)
}

// InvalidDefinitionReason returns the reason code of a route validation
// error, or "other" when err was not produced by route validation.
func InvalidDefinitionReason(err error) string {
	var defErr invalidDefinitionError
	if errors.As(err, &defErr) {
		return defErr.Code()
	}

	return "other"
}

func invalidRoute(reason invalidDefinitionError, prefix string, format string, args ...any) error {
	return fmt.Errorf("%w: route %q: %s", reason, prefix, fmt.Sprintf(format, args...))
}
