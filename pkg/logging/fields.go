package logging

import (
	"log/slog"

	"github.com/google/uuid"
)

// Domain identifiers

func Room(room string) slog.Attr {
	return slog.String("room", room)
}

func Handle(id uuid.UUID) slog.Attr {
	return slog.String("handle_id", id.String())
}

func User(id uuid.UUID) slog.Attr {
	return slog.String("user_id", id.String())
}

func Call(id uuid.UUID) slog.Attr {
	return slog.String("call_id", id.String())
}

func Tag(tag string) slog.Attr {
	return slog.String("tag", tag)
}

func Sequence(seq uint64) slog.Attr {
	return slog.Uint64("sequence", seq)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
