package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"meshup/internal/app/router"
	"meshup/internal/app/server/ws"
	"meshup/internal/config"
	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/internal/platform/logger"
	"meshup/internal/platform/metrics"
	"meshup/pkg/logging"
	"meshup/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Close codes sent when a connection is refused after the upgrade.
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
	CloseNotFound     = 4404
)

// CloseCode maps a refusal onto the close code the client reads.
func CloseCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return CloseUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return CloseForbidden
	case errors.Is(err, domain.ErrNotFound):
		return CloseNotFound
	}
	return websocket.CloseInternalServerErr
}

type RealtimeHandler struct {
	log        *slog.Logger
	cfg        *config.RealtimeConfig
	auth       middleware.Authenticator
	authorizer services.IAccessAuthorizer
	registry   contracts.Registry
	bridge     *services.Bridge
	routers    map[domain.RoomKind]router.Router
	upgrader   websocket.Upgrader
}

func NewRealtimeHandler(
	log *slog.Logger,
	cfg *config.RealtimeConfig,
	auth middleware.Authenticator,
	authorizer services.IAccessAuthorizer,
	registry contracts.Registry,
	bridge *services.Bridge,
	routers ...router.Router,
) *RealtimeHandler {
	h := &RealtimeHandler{
		log:        log,
		cfg:        cfg,
		auth:       auth,
		authorizer: authorizer,
		registry:   registry,
		bridge:     bridge,
		routers:    make(map[domain.RoomKind]router.Router, len(routers)),
	}
	for _, rt := range routers {
		h.routers[rt.Kind()] = rt
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *RealtimeHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Serve returns the handler for rooms of kind, keyed by the {id} URL parameter.
func (h *RealtimeHandler) Serve(kind domain.RoomKind) http.HandlerFunc {
	rt, ok := h.routers[kind]
	if !ok {
		panic("realtime handler: no router for room kind " + string(kind))
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, kind, rt)
	}
}

func (h *RealtimeHandler) serve(w http.ResponseWriter, r *http.Request, kind domain.RoomKind, rt router.Router) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WarnContext(r.Context(), "ws handler - upgrade - failed", logging.Err(err))
		return
	}
	wsConn := ws.NewConn(h.log, conn, h.cfg.ReadLimit, h.cfg.WriteTimeout)

	key, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.refuse(r.Context(), log, wsConn, kind, domain.ErrNotFound)
		return
	}
	room := domain.Room{Kind: kind, Key: key}
	span.SetAttributes(attribute.String("realtime.room", room.String()))

	p := h.auth.Authenticate(r.Context(), r)
	access, err := h.authorizer.Authorize(r.Context(), p, room)
	if err != nil {
		h.refuse(r.Context(), log, wsConn, kind, err)
		return
	}

	// The session outlives the request handler's span bookkeeping.
	ctx := context.WithoutCancel(r.Context())
	client := ws.NewClient(wsConn, p, h.cfg.SendBuffer, rate.Limit(h.cfg.InboundRate), h.cfg.InboundBurst)
	sess := &router.Session{Client: client, Access: access}

	h.registry.Join(room, client)
	metrics.Connections.WithLabelValues(string(kind)).Inc()
	log.InfoContext(ctx, "ws handler - connect - joined", logging.Room(room.String()), logging.Handle(client.ID()), logging.User(p.ID))
	rt.OnConnect(ctx, sess)

	defer func() {
		h.registry.LeaveAll(client)
		client.Close()
		rt.OnDisconnect(ctx, sess)
		metrics.Connections.WithLabelValues(string(kind)).Dec()
		log.InfoContext(ctx, "ws handler - disconnect - left", logging.Room(room.String()), logging.Handle(client.ID()), logging.Sequence(client.Seq()))
	}()

	wsConn.ReadLoop(func(data []byte) {
		if !client.Allow() {
			h.bridge.ReplyError(client, domain.ErrRateLimited)
			return
		}
		rt.Handle(ctx, sess, data)
	})
}

func (h *RealtimeHandler) refuse(ctx context.Context, log *slog.Logger, conn *ws.Conn, kind domain.RoomKind, err error) {
	code := CloseCode(err)
	metrics.Refused.WithLabelValues(string(kind), domain.ErrorCode(err)).Inc()
	if code == websocket.CloseInternalServerErr {
		log.ErrorContext(ctx, "ws handler - authorize - failed", logging.Err(err))
	} else {
		log.InfoContext(ctx, "ws handler - authorize - refused", "code", code, logging.Err(err))
	}
	conn.Refuse(code, domain.PublicMessage(err))
}
