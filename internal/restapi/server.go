// Package restapi serves any remote backend over HTTP.
package restapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gezibash/docio/internal/observability"
	docerrors "github.com/gezibash/docio/pkg/errors"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/remote"
)

// Server exposes a remote.Operations as a REST API.
type Server struct {
	ops     remote.Operations
	metrics *observability.Metrics
	logger  *slog.Logger
	users   map[string]string
	extra   map[string]http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithBasicAuth requires one of the given user/password pairs on /v1.
func WithBasicAuth(users map[string]string) Option {
	return func(s *Server) { s.users = users }
}

// WithHandler mounts h at path outside /v1, e.g. /metrics.
func WithHandler(path string, h http.Handler) Option {
	return func(s *Server) { s.extra[path] = h }
}

// New creates a server for ops.
func New(ops remote.Operations, opts ...Option) *Server {
	s := &Server{ops: ops, extra: make(map[string]http.Handler)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "restapi")
	return s
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.metrics, routePattern))

	r.Get("/health", s.health)
	for path, h := range s.extra {
		r.Handle(path, h)
	}

	r.Route("/v1", func(r chi.Router) {
		if len(s.users) > 0 {
			r.Use(middleware.BasicAuth("docio", s.users))
		}
		r.Get("/documents", s.getDocument)
		r.Put("/documents", s.putDocument)
		r.Delete("/documents", s.deleteDocument)
		r.Post("/transactions", s.openTransaction)
		r.Post("/transactions/{id}", s.resolveTransaction)
	})
	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestFrom(r *http.Request) (remote.Request, error) {
	q := r.URL.Query()
	req := remote.Request{
		URI:         q.Get(ParamURI),
		Transaction: q.Get(ParamTransaction),
		Mimetype:    r.Header.Get("Content-Type"),
	}

	name := r.Header.Get(HeaderFormat)
	if name == "" {
		name = q.Get(ParamFormat)
	}
	if name == "" {
		req.Format = format.FromMimetype(req.Mimetype)
		return req, nil
	}
	f, err := format.Parse(name)
	if err != nil {
		return req, err
	}
	req.Format = f
	return req, nil
}

// getDocument handles GET /v1/documents.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	req, err := requestFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	doc, err := s.ops.GetDocument(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer doc.Body.Close()

	mimetype := doc.Mimetype
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimetype)
	w.Header().Set(HeaderFormat, doc.Format.String())
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, doc.Body); err != nil {
		s.logger.WarnContext(r.Context(), "document body copy failed", "uri", req.URI, "error", err)
	}
}

// putDocument handles PUT /v1/documents.
func (s *Server) putDocument(w http.ResponseWriter, r *http.Request) {
	req, err := requestFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ops.PutDocument(r.Context(), req, r.Body); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteDocument handles DELETE /v1/documents.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	req, err := requestFrom(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ops.DeleteDocument(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// openTransaction handles POST /v1/transactions.
func (s *Server) openTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := s.ops.OpenTransaction(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", TransactionsPath+"/"+id)
	writeJSON(w, http.StatusCreated, TransactionResponse{ID: id})
}

// resolveTransaction handles POST /v1/transactions/{id}?result=commit|rollback.
func (s *Server) resolveTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var err error
	switch result := r.URL.Query().Get(ParamResult); result {
	case ResultCommit:
		err = s.ops.CommitTransaction(r.Context(), id)
	case ResultRollback:
		err = s.ops.RollbackTransaction(r.Context(), id)
	default:
		err = fmt.Errorf("%w: result must be %s or %s, got %q",
			docerrors.ErrInvalidArgument, ResultCommit, ResultRollback, result)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
