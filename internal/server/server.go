package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailcheck/internal/catalog"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/sweep"
)

const shutdownTimeout = 10 * time.Second

// Catalog is the account catalog the API serves. *catalog.Catalog
// satisfies it.
type Catalog interface {
	Add(ctx context.Context, address, secret, label string) (model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	Get(ctx context.Context, id string) (model.Account, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, path string) error
	Import(ctx context.Context, r io.Reader) (catalog.ImportReport, error)
}

// Checker polls accounts. *sweep.Runner satisfies it.
type Checker interface {
	Check(ctx context.Context, acc model.Account) sweep.AccountResult
	Run(ctx context.Context, accounts []model.Account) []sweep.AccountResult
}

// Server exposes the catalog and the poller over HTTP.
type Server struct {
	catalog       Catalog
	checker       Checker
	adminPassword string
	log           zerolog.Logger
	mux           *http.ServeMux
}

// New creates a Server with all routes registered.
func New(cat Catalog, checker Checker, adminPassword string, log zerolog.Logger) *Server {
	s := &Server{
		catalog:       cat,
		checker:       checker,
		adminPassword: adminPassword,
		log:           log,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	s.mux.HandleFunc("GET /api/accounts/{id}/check", s.handleCheckAccount)
	s.mux.HandleFunc("GET /api/check", s.handleCheckAll)

	s.mux.Handle("POST /api/admin/accounts", s.requireAdmin(s.handleAddAccount))
	s.mux.Handle("DELETE /api/admin/accounts/{id}", s.requireAdmin(s.handleDeleteAccount))
	s.mux.Handle("POST /api/admin/accounts/{id}/delete", s.requireAdmin(s.handleDeleteAccount))
	s.mux.Handle("GET /api/admin/export", s.requireAdmin(s.handleExport))
	s.mux.Handle("POST /api/admin/import", s.requireAdmin(s.handleImport))
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.log.Info().Msg("Server stopped")
	return nil
}
