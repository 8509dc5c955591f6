// Package server wires the gateway HTTP surface: health checks and the
// messaging webhook, behind the middleware chain.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/memorylane-ai/memorylane/pkg/gateway/config"
	"github.com/memorylane-ai/memorylane/pkg/gateway/mw"
	"github.com/memorylane-ai/memorylane/pkg/gateway/webhook"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	hub        *webhook.Hub
	downloader webhook.MediaDownloader
	httpServer *http.Server
}

// New creates a server over the given conversation hub.
func New(cfg config.Config, hub *webhook.Hub, downloader webhook.MediaDownloader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		hub:        hub,
		downloader: downloader,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.mux.Handle("/webhook", &webhook.Handler{
		VerifyToken:  s.cfg.VerifyToken,
		Hub:          s.hub,
		Downloader:   s.downloader,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
		Logger:       s.logger,
	})
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
