package live

import "errors"

// Sentinel errors surfaced to clients as error-event codes.
var (
	ErrSessionNotJoinable = errors.New("session is not joinable")
	ErrHostConflict       = errors.New("session already has an active host")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUserBlocked        = errors.New("user is blocked in this session")
	ErrRejected           = errors.New("rejected by moderation")
	ErrStaleTarget        = errors.New("signaling target is no longer a participant")
	ErrInvalidTransition  = errors.New("invalid session status transition")
	ErrNotParticipant     = errors.New("not a participant of this session")
	ErrInvalidSignal      = errors.New("invalid signaling envelope")
	ErrNotHost            = errors.New("operation requires the host role")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownReview      = errors.New("unknown review reference")
)

// ErrorCode maps a core error to its wire code. Unknown errors map to Internal;
// callers should log those rather than forward details to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotJoinable):
		return "SessionNotJoinable"
	case errors.Is(err, ErrHostConflict):
		return "HostConflict"
	case errors.Is(err, ErrInvalidMessage):
		return "InvalidMessage"
	case errors.Is(err, ErrUserBlocked):
		return "UserBlocked"
	case errors.Is(err, ErrRejected):
		return "RejectedByModeration"
	case errors.Is(err, ErrStaleTarget):
		return "StaleTarget"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrNotParticipant):
		return "NotParticipant"
	case errors.Is(err, ErrInvalidSignal):
		return "InvalidSignal"
	case errors.Is(err, ErrNotHost):
		return "NotHost"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrUnknownReview):
		return "UnknownReview"
	default:
		return "Internal"
	}
}
