package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrStateConflict   = errors.New("state conflict")
	ErrDeliveryFailure = errors.New("delivery failure")
	ErrRateLimited     = errors.New("rate limited")

	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)
	ErrServerNotFound  = fmt.Errorf("%w: server", ErrNotFound)
	ErrChannelNotFound = fmt.Errorf("%w: channel", ErrNotFound)
	ErrDMNotFound      = fmt.Errorf("%w: direct message", ErrNotFound)
	ErrCallNotFound    = fmt.Errorf("%w: call", ErrNotFound)
	ErrEventNotFound   = fmt.Errorf("%w: event", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("%w: message", ErrNotFound)

	ErrParticipantNotFound = fmt.Errorf("%w: call participant", ErrNotFound)
	ErrInvitationNotFound  = fmt.Errorf("%w: call invitation", ErrNotFound)

	ErrNotInvited = fmt.Errorf("%w: not invited", ErrForbidden)

	ErrCallInactive      = fmt.Errorf("%w: call is not active", ErrStateConflict)
	ErrNotInCall         = fmt.Errorf("%w: not in call", ErrStateConflict)
	ErrAlreadyEnded      = fmt.Errorf("%w: call already ended", ErrStateConflict)
	ErrAlreadySharing    = fmt.Errorf("%w: already sharing screen", ErrStateConflict)
	ErrNoActiveShare     = fmt.Errorf("%w: no active screen share", ErrStateConflict)
	ErrSlowmode          = fmt.Errorf("%w: slowmode", ErrStateConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid transition", ErrStateConflict)
)

// ErrorCode maps err onto the stable code carried by error events and REST bodies.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotInvited):
		return "not_invited"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCallInactive):
		return "call_inactive"
	case errors.Is(err, ErrNotInCall):
		return "not_in_call"
	case errors.Is(err, ErrAlreadyEnded):
		return "already_ended"
	case errors.Is(err, ErrAlreadySharing):
		return "already_sharing"
	case errors.Is(err, ErrNoActiveShare):
		return "no_active_share"
	case errors.Is(err, ErrSlowmode):
		return "slowmode"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStateConflict):
		return "state_conflict"
	}
	return "internal"
}

// PublicMessage hides datastore details from clients.
func PublicMessage(err error) string {
	if ErrorCode(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
