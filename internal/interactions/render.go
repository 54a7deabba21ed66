package interactions

import (
	perr "warden/internal/platform/errors"
)

// renderError maps a service error onto the short outcome message the actor
// sees. Everything is ephemeral; the channel is not the place for failures.
func renderError(err error) string {
	e, ok := perr.As(err)
	switch perr.CodeOf(err) {
	case perr.ErrorCodeAlreadyInState,
		perr.ErrorCodeForbidden,
		perr.ErrorCodeNotConfigured,
		perr.ErrorCodeValidation,
		perr.ErrorCodeInvalidArgument,
		perr.ErrorCodeStaleEntity:
		// these messages are written for the actor; pass them through
		if ok {
			return e.Msg()
		}
		return err.Error()
	case perr.ErrorCodeNotFound:
		return "That doesn't seem to exist anymore."
	case perr.ErrorCodeUnavailable, perr.ErrorCodeTooManyRequests:
		return "The platform is having trouble right now; please try again in a moment."
	default:
		return "Something went wrong."
	}
}
