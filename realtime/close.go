package realtime

import (
	"errors"

	errs "github.com/campuslink/campus/errors"
)

// Close codes sent when a session ends. Clients rely on these values to tell
// permanent auth failures from transient server errors.
const (
	CloseInternalError        = 4000
	CloseMissingCredential    = 4001
	CloseInvalidCredential    = 4002
	CloseConversationNotFound = 4003
	CloseNotAuthorized        = 4004
	CloseUnknownSubject       = 4005
)

var closeReasons = map[int]string{
	CloseInternalError:        "internal-error",
	CloseMissingCredential:    "missing-credential",
	CloseInvalidCredential:    "invalid-credential",
	CloseConversationNotFound: "conversation-not-found",
	CloseNotAuthorized:        "not-authorized",
	CloseUnknownSubject:       "unknown-subject",
}

// CloseReason returns the textual kind of a close code
func CloseReason(code int) string {
	if reason, ok := closeReasons[code]; ok {
		return reason
	}
	return "normal"
}

// closeCodeFor maps a connect-time failure to its close code
func closeCodeFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidCredential):
		return CloseInvalidCredential
	case errors.Is(err, errs.ErrUnknownSubject):
		return CloseUnknownSubject
	case errors.Is(err, errs.ErrChatNotFound):
		return CloseConversationNotFound
	case errors.Is(err, errs.ErrForbidden):
		return CloseNotAuthorized
	default:
		return CloseInternalError
	}
}
