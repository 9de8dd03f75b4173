package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"meshup/internal/app/server/handlers"
	"meshup/internal/config"
	"meshup/internal/core/domain"
	"meshup/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	log      *slog.Logger
	cfg      *config.Config
	router   chi.Router
	auth     middleware.Authenticator
	realtime *handlers.RealtimeHandler
	calls    *handlers.CallHandler
	messages *handlers.MessageHandler
	events   *handlers.EventHandler
}

func NewServer(
	log *slog.Logger,
	cfg *config.Config,
	auth middleware.Authenticator,
	realtime *handlers.RealtimeHandler,
	calls *handlers.CallHandler,
	messages *handlers.MessageHandler,
	events *handlers.EventHandler,
) *Server {
	s := &Server{
		log:      log,
		cfg:      cfg,
		router:   chi.NewRouter(),
		auth:     auth,
		realtime: realtime,
		calls:    calls,
		messages: messages,
		events:   events,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracerMiddleware(s.cfg.Service.Name))
	r.Use(middleware.RequestLogger(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Websocket refusals happen after the upgrade so clients can read the close code.
	r.Route("/realtime", func(r chi.Router) {
		r.Get("/channels/{id}", s.realtime.Serve(domain.RoomChannel))
		r.Get("/direct-messages/{id}", s.realtime.Serve(domain.RoomDM))
		r.Get("/presence/{id}", s.realtime.Serve(domain.RoomPresence))
		r.Get("/calls/{id}", s.realtime.Serve(domain.RoomCall))
		r.Get("/events/{id}", s.realtime.Serve(domain.RoomEvent))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.HTTP.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(httprate.LimitByIP(s.cfg.HTTP.RateLimitRequests, s.cfg.HTTP.RateLimitWindow))
		r.Use(middleware.AuthMiddleware(s.auth))

		r.Post("/calls", s.calls.Initiate)
		r.Route("/calls/{id}", func(r chi.Router) {
			r.Post("/join", s.calls.Join)
			r.Post("/leave", s.calls.Leave)
			r.Post("/end", s.calls.End)
			r.Post("/decline", s.calls.Decline)
			r.Post("/media", s.calls.UpdateMedia)
			r.Post("/status", s.calls.SetStatus)
			r.Post("/screen-share/start", s.calls.StartScreenShare)
			r.Post("/screen-share/end", s.calls.StopScreenShare)
			r.Get("/participants", s.calls.Participants)
		})

		r.Post("/channels/{id}/messages", s.messages.PostChannelMessage)
		r.Post("/direct-messages/{id}/messages", s.messages.PostDirectMessage)

		r.Post("/events/{id}/rsvp", s.events.RSVP)
		r.Patch("/events/{id}", s.events.Update)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully. It satisfies suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Service.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server - listen - starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.log.Error("server - listen - failed", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server - shutdown - failed", "err", err)
		return err
	}
	s.log.Info("server - shutdown - complete")
	return ctx.Err()
}

func (s *Server) String() string { return "http-server" }
