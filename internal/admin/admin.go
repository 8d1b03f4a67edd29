// Package admin serves the HTTP API used to inspect and control sessions.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rbright/boltd/internal/logging"
	"github.com/rbright/boltd/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Options configures the admin handler.
type Options struct {
	Registry *session.Registry
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Version  string
	// RatePerMinute limits requests per client IP. Zero disables limiting.
	RatePerMinute int
	// Trace wraps the router in OpenTelemetry HTTP instrumentation.
	Trace bool
}

// Health is the body of GET /healthz.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

type apiError struct {
	Error string `json:"error"`
}

// NewHandler builds the admin router.
func NewHandler(opts Options) http.Handler {
	log := logging.WithComponent(opts.Logger, "admin")
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, elapsed time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str(logging.FieldPath, r.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("admin request")
	}))
	if opts.RatePerMinute > 0 {
		r.Use(httprate.Limit(
			opts.RatePerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, apiError{Error: "rate limit exceeded"})
			}),
		))
	}

	a := &api{registry: opts.Registry, version: opts.Version}
	r.Get("/healthz", a.health)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", a.listSessions)
		r.Get("/{id}", a.getSession)
		r.Post("/{id}/terminate", a.terminate)
		r.Post("/{id}/interrupt", a.interrupt)
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if !opts.Trace {
		return r
	}
	return otelhttp.NewHandler(r, "boltd-admin",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method + " " + r.URL.Path
		}),
	)
}

type api struct {
	registry *session.Registry
	version  string
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok", Version: a.version, Sessions: a.registry.Len()})
}

func (a *api) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.List())
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: session.ErrNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (a *api) terminate(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.registry.Terminate, "terminated")
}

func (a *api) interrupt(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, a.registry.Interrupt, "interrupted")
}

func (a *api) control(w http.ResponseWriter, r *http.Request, action func(string) error, verb string) {
	id := chi.URLParam(r, "id")
	if err := action(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	hlog.FromRequest(r).Info().Str(logging.FieldConnectionID, id).Msgf("session %s", verb)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": verb})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on address until ctx is cancelled, then shuts down.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return errors.Wrapf(err, "listen admin %s", address)
	}
	return ServeListener(ctx, listener, handler)
}

// ServeListener serves handler on listener until ctx is cancelled.
func ServeListener(ctx context.Context, listener net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve admin")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown admin")
		}
		<-errCh
		return nil
	}
}

// Client calls the admin API.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets the admin API at address (host:port).
func NewClient(address string, timeout time.Duration) *Client {
	return &Client{base: "http://" + address, http: &http.Client{Timeout: timeout}}
}

// Health fetches /healthz.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/healthz", &out)
	return out, err
}

// Sessions lists live sessions.
func (c *Client) Sessions(ctx context.Context) ([]session.Info, error) {
	var out []session.Info
	err := c.do(ctx, http.MethodGet, "/sessions", &out)
	return out, err
}

// Terminate asks the server to close session id.
func (c *Client) Terminate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+id+"/terminate", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return errors.Wrap(err, "build admin request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return errors.Wrap(session.ErrNotFound, apiErr.Error)
		}
		return errors.Newf("%s %s: %s", method, path, statusText(resp.StatusCode, apiErr.Error))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode admin response")
	}
	return nil
}

func statusText(code int, detail string) string {
	if detail == "" {
		return fmt.Sprintf("%d %s", code, http.StatusText(code))
	}
	return fmt.Sprintf("%d %s", code, detail)
}
