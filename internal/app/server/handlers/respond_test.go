package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"meshup/internal/core/domain"

	"github.com/gorilla/websocket"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrNotInvited, http.StatusForbidden},
		{domain.ErrCallNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: body", domain.ErrInvalidPayload), http.StatusBadRequest},
		{domain.ErrSlowmode, http.StatusTooManyRequests},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrAlreadyEnded, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Errorf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestCloseCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorized, CloseUnauthorized},
		{domain.ErrNotInvited, CloseForbidden},
		{domain.ErrChannelNotFound, CloseNotFound},
		{errors.New("timeout"), websocket.CloseInternalServerErr},
	}
	for _, c := range cases {
		if got := CloseCode(c.err); got != c.want {
			t.Errorf("CloseCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
