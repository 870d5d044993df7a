package google

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teemow/inboxauth/internal/logging"
)

const (
	// DefaultCallbackPort is the loopback port the redirect URI points at.
	DefaultCallbackPort = 8080

	// DefaultCallbackPath is the redirect URI path.
	DefaultCallbackPath = "/"

	// DefaultCallbackHost is the interface the listener binds to.
	DefaultCallbackHost = "127.0.0.1"

	callbackShutdownTimeout = 5 * time.Second
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	callbackSuccessTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	callbackErrorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult is the outcome of the authorization redirect: either a
// code or an error.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider redirected with an error.
func (r CallbackResult) IsError() bool {
	return r.Error != ""
}

// Message returns the error and its description for display.
func (r CallbackResult) Message() string {
	if r.ErrorDescription == "" {
		return r.Error
	}
	return r.Error + ": " + r.ErrorDescription
}

// Listener captures the authorization redirect.
//
// Start binds immediately and delivers at most one CallbackResult on
// results: the first request carrying a code or an error, with its state
// passed through unchecked. The Controller compares the state and fails the
// run on a mismatch. Stop releases the port and may be called any number of
// times.
type Listener interface {
	Start(ctx context.Context, results chan<- CallbackResult) error
	RedirectURI() string
	Stop() error
}

// CallbackServerConfig configures a CallbackServer.
type CallbackServerConfig struct {
	// Host defaults to 127.0.0.1.
	Host string

	// Port defaults to DefaultCallbackPort. Negative means an ephemeral port.
	Port int

	// Path defaults to "/".
	Path string

	Logger *slog.Logger
}

// CallbackServer is a short-lived loopback HTTP server that accepts exactly
// one authorization redirect.
type CallbackServer struct {
	host   string
	port   int
	path   string
	logger *slog.Logger

	server   *http.Server
	listener net.Listener
	results  chan<- CallbackResult

	once      sync.Once
	satisfied atomic.Bool
	stopOnce  sync.Once
	stopErr   error
	done      chan struct{}
}

// NewCallbackServer creates a callback server. It does not bind until Start.
func NewCallbackServer(cfg CallbackServerConfig) *CallbackServer {
	if cfg.Host == "" {
		cfg.Host = DefaultCallbackHost
	}
	switch {
	case cfg.Port == 0:
		cfg.Port = DefaultCallbackPort
	case cfg.Port < 0:
		cfg.Port = 0
	}
	if cfg.Path == "" {
		cfg.Path = DefaultCallbackPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CallbackServer{
		host:   cfg.Host,
		port:   cfg.Port,
		path:   cfg.Path,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
}

// Start binds the port and serves in the background. The server stops when
// ctx is cancelled or Stop is called.
func (s *CallbackServer) Start(ctx context.Context, results chan<- CallbackResult) error {
	if results == nil {
		return errors.New("callback server: results channel is nil")
	}
	if s.server != nil {
		return errors.New("callback server: already started")
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %w", ErrPortUnavailable, addr, err)
	}

	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.results = results

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server stopped unexpectedly", logging.Err(err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()

	s.logger.Debug("callback server listening", "addr", ln.Addr().String(), "path", s.path)
	return nil
}

// RedirectURI returns the URI the authorization server must redirect to.
// With an ephemeral port it is only meaningful after Start.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}

// Port returns the bound port.
func (s *CallbackServer) Port() int {
	return s.port
}

// Satisfied reports whether a legitimate callback has been received.
func (s *CallbackServer) Satisfied() bool {
	return s.satisfied.Load()
}

// Stop shuts the server down and releases the port. It is safe to call
// before Start, after a result and more than once.
func (s *CallbackServer) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.stopErr = err
			_ = s.server.Close()
		}
		// Shutdown only closes listeners Serve has already registered.
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		s.logger.Debug("callback server stopped", "port", s.port)
	})
	return s.stopErr
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodGet || r.URL.Path != s.path {
		http.Error(w, "Not an authorization callback", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	result := CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	switch {
	case result.IsError():
		render(w, http.StatusBadRequest, callbackErrorTmpl, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	case result.Code != "":
		render(w, http.StatusOK, callbackSuccessTmpl, nil)
	default:
		http.Error(w, "Missing code or error parameter", http.StatusBadRequest)
		return
	}

	s.resolve(result)
}

// resolve delivers the first result carrying a code or an error, whatever
// its state. Later calls are no-ops.
func (s *CallbackServer) resolve(result CallbackResult) {
	s.once.Do(func() {
		s.satisfied.Store(true)
		select {
		case s.results <- result:
		case <-s.done:
		}
	})
}

func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = tmpl.Execute(w, data)
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}
