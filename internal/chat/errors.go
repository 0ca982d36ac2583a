package chat

import (
	"errors"

	"go-securechat/internal/sanitize"
)

var (
	ErrUnauthenticated = errors.New("login required")
	ErrNotJoined       = errors.New("session is not joined")
	ErrAlreadyJoined   = errors.New("session already joined")
	ErrSessionClosed   = errors.New("session has left")
	ErrNotFound        = errors.New("message not found")
	ErrRateLimited     = errors.New("sending too fast")
)

// rejectionReason maps send failures the user can fix to a short code for
// the client. Anything else is reported as "internal".
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, sanitize.ErrEmpty):
		return "empty"
	case errors.Is(err, sanitize.ErrSensitive):
		return "sensitive"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrNotJoined), errors.Is(err, ErrSessionClosed):
		return "not_joined"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
