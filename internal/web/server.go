package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
)

// NewServer creates the HTTP server for draft sessions.
func NewServer(sessions *Sessions, store *draft.Store, cfg *config.Config, log zerolog.Logger, bind string, port int) *http.Server {
	h := NewHandlers(sessions, store, cfg, log)

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("POST /sessions", h.HandleOpen)
	mux.HandleFunc("GET /sessions", h.HandleList)
	mux.HandleFunc("GET /sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /sessions/{id}", h.HandleClose)
	mux.HandleFunc("PUT /sessions/{id}/data", h.HandleUpdate)
	mux.HandleFunc("POST /sessions/{id}/save", h.HandleSave)
	mux.HandleFunc("POST /sessions/{id}/beacon", h.HandleBeacon)
	mux.HandleFunc("POST /sessions/{id}/accept", h.HandleAccept)
	mux.HandleFunc("POST /sessions/{id}/dismiss", h.HandleDismiss)
	mux.HandleFunc("DELETE /sessions/{id}/draft", h.HandleClear)
	mux.HandleFunc("PUT /sessions/{id}/enabled", h.HandleEnabled)
	mux.HandleFunc("GET /sessions/{id}/prompt", h.HandlePrompt)

	mux.HandleFunc("GET /drafts", h.HandleDrafts)
	mux.HandleFunc("POST /drafts/purge", h.HandlePurge)
	mux.HandleFunc("GET /drafts/{key}", h.HandleDraft)
	mux.HandleFunc("DELETE /drafts/{key}", h.HandleRemoveDraft)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// Every open session is flushed once the server stops accepting requests.
func Run(srv *http.Server, sessions *Sessions, log zerolog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", srv.Addr).Msgf("draftkeep listening at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn().Msg("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		sessions.Shutdown()
		return err
	case <-sigCh:
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(ctx)
		sessions.Shutdown()
		return err
	}
}
