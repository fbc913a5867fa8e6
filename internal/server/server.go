// Package server exposes an agent session over HTTP: JSON endpoints for
// conversations, plans and undo, and an SSE stream per sent message.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/telebiz/agentcore/internal/agent"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/metrics"
)

// Options configures the HTTP surface.
type Options struct {
	Addr           string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// MCP serves the relay websocket at /mcp when set.
	MCP http.Handler
}

// Server serves one agent session.
type Server struct {
	session *agent.Session
	metrics *metrics.Metrics
	router  chi.Router
	addr    string
	log     *logging.Logger
}

// New builds the router.
func New(session *agent.Session, opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		session: session,
		metrics: opts.Metrics,
		addr:    opts.Addr,
		log:     logging.New("server"),
	}
	s.router = s.routes(opts)
	return s
}

func (s *Server) routes(opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler())
	if opts.MCP != nil {
		r.Get("/mcp", opts.MCP.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/mode", s.handleGetMode)
		r.Post("/mode", s.handleSetMode)

		r.Route("/bundles", func(r chi.Router) {
			r.Get("/", s.handleListBundles)
			r.Get("/{name}", s.handleGetBundle)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Post("/", s.handleCreateConversation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetConversation)
				r.Delete("/", s.handleDeleteConversation)
				r.Post("/switch", s.handleSwitchConversation)
				r.Post("/messages", s.handleSendMessage)
			})
		})

		r.Route("/plans/{id}", func(r chi.Router) {
			r.Post("/confirm", s.handleConfirmPlan)
			r.Post("/cancel", s.handleCancelPlan)
		})

		r.Get("/executions", s.handleListExecutions)
		r.Post("/executions/last/undo", s.handleUndoLast)
	})
	return r
}

// requestLogger logs one line per request. The wrapped writer keeps
// http.Flusher so SSE responses still stream.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		extra := map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"request_id": chimw.GetReqID(r.Context()),
		}
		switch {
		case ww.Status() >= 500:
			s.log.Error("request", extra, nil)
		case ww.Status() >= 400:
			s.log.Warn("request", extra, nil)
		default:
			s.log.TimedEvent("request", start, extra)
		}
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("server_listening", map[string]any{"addr": s.addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
