package google

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxauth/internal/instrumentation"
	"github.com/teemow/inboxauth/internal/logging"
)

const (
	// DefaultCallbackTimeout bounds the wait for the authorization redirect.
	DefaultCallbackTimeout = 120 * time.Second

	// DefaultHTTPTimeout bounds each call to the token endpoint.
	DefaultHTTPTimeout = 30 * time.Second
)

// FlowState is a state of the authorization state machine.
type FlowState string

const (
	StateNoToken          FlowState = "no_token"
	StateValid            FlowState = "valid"
	StateStale            FlowState = "stale"
	StateRefreshing       FlowState = "refreshing"
	StateNeedsInteractive FlowState = "needs_interactive"
	StateAwaitingCallback FlowState = "awaiting_callback"
	StateExchanging       FlowState = "exchanging"
	StateFailed           FlowState = "failed"
)

// Presenter shows the authorization URL to the user.
type Presenter func(ctx context.Context, authURL string) error

// ControllerConfig wires the collaborators of a Controller.
type ControllerConfig struct {
	Store        TokenStore
	ClientConfig ClientConfigSource

	// NewListener returns a fresh, unstarted listener for each interactive attempt.
	NewListener func() Listener

	// Present defaults to logging the URL.
	Present Presenter

	// Scopes defaults to DefaultScopes.
	Scopes []string

	CallbackTimeout time.Duration
	HTTPTimeout     time.Duration

	// HTTPClient is used for the token endpoint. Defaults to an HTTP/1.1
	// client bounded by HTTPTimeout.
	HTTPClient *http.Client

	// NonInteractive makes the controller fail with ErrInteractionRequired
	// instead of starting a browser authorization.
	NonInteractive bool

	// Leeway treats records expiring within this window as stale.
	Leeway time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Result is the structured outcome of one run of the state machine.
type Result struct {
	// State is the last state reached.
	State FlowState

	// Record is set when State is StateValid.
	Record *TokenRecord

	// Path lists the visited states in order.
	Path []FlowState
}

// Controller decides whether the stored credential can be reused, refreshed
// or must be re-acquired interactively. One run at a time.
type Controller struct {
	cfg ControllerConfig
}

// NewController creates a Controller, applying defaults.
func NewController(cfg ControllerConfig) *Controller {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: newTransport(),
		}
	}
	if cfg.Present == nil {
		logger := cfg.Logger
		cfg.Present = func(_ context.Context, authURL string) error {
			logger.Info("open this URL to authorize the application", "url", authURL)
			return nil
		}
	}
	if cfg.NewListener == nil {
		logger := cfg.Logger
		cfg.NewListener = func() Listener {
			return NewCallbackServer(CallbackServerConfig{Logger: logger})
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{cfg: cfg}
}

// GetValidCredential returns a usable token record, refreshing or
// re-authorizing as needed.
func (c *Controller) GetValidCredential(ctx context.Context) (*TokenRecord, error) {
	res, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Run executes the state machine once. The returned Result is never nil.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	flowID := uuid.NewString()
	ctx, span := instrumentation.StartFlowSpan(ctx, "flow",
		attribute.String(instrumentation.SpanAttrFlowID, flowID))
	defer span.End()

	r := &flowRun{
		c:      c,
		logger: logging.WithFlow(c.cfg.Logger, flowID),
		span:   span,
		result: &Result{},
	}

	start := c.cfg.Now()
	rec, err := r.execute(ctx)
	r.result.Record = rec

	c.cfg.Metrics.RecordOAuthFlow(ctx, string(r.result.State), time.Since(start))
	span.SetAttributes(attribute.String(instrumentation.SpanAttrFlowState, string(r.result.State)))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		r.logger.Warn("credential flow ended without a valid token",
			logging.State(string(r.result.State)), logging.Err(err),
			"trace_id", instrumentation.GetTraceID(ctx))
		return r.result, err
	}
	instrumentation.SetSpanSuccess(span)
	if !rec.Expiry.IsZero() {
		c.cfg.Metrics.RecordTokenExpiry(ctx, rec.Expiry.Sub(c.cfg.Now()))
	}
	r.logger.Info("credential is valid", logging.Expiry(rec.Expiry), "path", r.result.Path)
	return r.result, nil
}

// flowRun holds the per-run state. It is owned by a single goroutine.
type flowRun struct {
	c      *Controller
	logger *slog.Logger
	span   trace.Span
	result *Result
}

func (r *flowRun) enter(state FlowState) {
	r.result.State = state
	r.result.Path = append(r.result.Path, state)
	r.logger.Debug("flow transition", logging.State(string(state)))
	instrumentation.AddSpanEvent(r.span, "transition",
		attribute.String(instrumentation.SpanAttrFlowState, string(state)))
}

// fail moves to StateFailed and returns kind wrapped with its cause.
func (r *flowRun) fail(kind error, cause error) error {
	r.enter(StateFailed)
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

func (r *flowRun) execute(ctx context.Context) (*TokenRecord, error) {
	cfg := r.c.cfg

	rec, err := cfg.Store.Load()
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			return nil, err
		}
		r.enter(StateNoToken)
		return r.authorize(ctx)
	}

	if missing := rec.MissingScopes(cfg.Scopes); len(missing) > 0 {
		r.logger.Info("stored token lacks required scopes, re-authorizing", "missing", missing)
		r.enter(StateNeedsInteractive)
		return r.authorize(ctx)
	}

	if rec.Fresh(cfg.Now().Add(cfg.Leeway)) {
		r.enter(StateValid)
		return rec, nil
	}

	r.enter(StateStale)
	if rec.RefreshToken == "" {
		r.logger.Info("stored token expired and has no refresh token")
		r.enter(StateNeedsInteractive)
		return r.authorize(ctx)
	}

	r.enter(StateRefreshing)
	refreshed, err := r.refresh(ctx, rec)
	if err != nil {
		cfg.Metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		r.logger.Warn("token refresh failed, falling back to authorization", logging.Err(err))
		r.enter(StateNeedsInteractive)
		return r.authorize(ctx)
	}
	cfg.Metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	if err := cfg.Store.Save(refreshed); err != nil {
		return nil, err
	}
	r.enter(StateValid)
	return refreshed, nil
}

// refresh exchanges the record's refresh token for a new record.
func (r *flowRun) refresh(ctx context.Context, rec *TokenRecord) (*TokenRecord, error) {
	cfg := r.c.cfg
	ctx, span := instrumentation.StartFlowSpan(ctx, "refresh")
	defer span.End()

	conf := &oauth2.Config{
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  rec.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: cfg.Scopes,
	}
	if rec.ClientID == "" || rec.TokenURI == "" {
		cc, err := cfg.ClientConfig.Load()
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return nil, fmt.Errorf("%w: no client identity: %w", ErrRefreshFailed, err)
		}
		conf = cc.OAuth2Config(cfg.Scopes, "")
	}

	ctx, cancel := context.WithTimeout(r.c.httpContext(ctx), cfg.HTTPTimeout)
	defer cancel()

	// An empty access token forces the refresher to hit the token endpoint.
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	instrumentation.SetSpanSuccess(span)
	return newTokenRecord(tok, conf), nil
}

// authorize runs the interactive authorization-code flow.
func (r *flowRun) authorize(ctx context.Context) (*TokenRecord, error) {
	cfg := r.c.cfg

	if cfg.NonInteractive {
		return nil, r.fail(ErrInteractionRequired, nil)
	}

	cc, err := cfg.ClientConfig.Load()
	if err != nil {
		return nil, err
	}

	state := newState()
	verifier := oauth2.GenerateVerifier()

	listener := cfg.NewListener()
	results := make(chan CallbackResult, 1)
	if err := listener.Start(ctx, results); err != nil {
		if !errors.Is(err, ErrPortUnavailable) {
			err = fmt.Errorf("%w: %w", ErrPortUnavailable, err)
		}
		return nil, err
	}
	defer func() { _ = listener.Stop() }()

	conf := cc.OAuth2Config(cfg.Scopes, listener.RedirectURI())
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	if err := cfg.Present(ctx, authURL); err != nil {
		r.logger.Warn("could not present authorization URL", logging.Err(err))
	}

	r.enter(StateAwaitingCallback)
	result, err := r.await(ctx, listener, results)
	if err != nil {
		return nil, err
	}

	if result.IsError() {
		cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultDenied)
		return nil, r.fail(ErrAuthorizationDenied, errors.New(result.Message()))
	}
	if result.State == "" || subtle.ConstantTimeCompare([]byte(result.State), []byte(state)) != 1 {
		cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		r.logger.Warn("callback state does not match this authorization, discarding code",
			"state_present", result.State != "")
		return nil, r.fail(ErrStateMismatch, nil)
	}

	r.enter(StateExchanging)
	rec, err := r.exchange(ctx, conf, result.Code, verifier)
	if err != nil {
		cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, r.fail(ErrExchangeFailed, err)
	}
	cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)

	if err := cfg.Store.Save(rec); err != nil {
		return nil, err
	}
	r.enter(StateValid)
	return rec, nil
}

// await blocks until the listener resolves, the timeout fires or ctx is
// done. The listener is stopped before returning in every case.
func (r *flowRun) await(ctx context.Context, listener Listener, results <-chan CallbackResult) (CallbackResult, error) {
	cfg := r.c.cfg
	ctx, span := instrumentation.StartFlowSpan(ctx, "await_callback")
	defer span.End()

	timer := time.NewTimer(cfg.CallbackTimeout)
	defer timer.Stop()

	select {
	case result := <-results:
		_ = listener.Stop()
		instrumentation.SetSpanSuccess(span)
		return result, nil
	case <-timer.C:
		_ = listener.Stop()
		cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultTimeout)
		err := r.fail(ErrAuthorizationTimeout, fmt.Errorf("no callback within %s", cfg.CallbackTimeout))
		instrumentation.SetSpanError(span, err)
		return CallbackResult{}, err
	case <-ctx.Done():
		_ = listener.Stop()
		err := r.fail(ctx.Err(), nil)
		instrumentation.SetSpanError(span, err)
		return CallbackResult{}, err
	}
}

func (r *flowRun) exchange(ctx context.Context, conf *oauth2.Config, code, verifier string) (*TokenRecord, error) {
	ctx, span := instrumentation.StartFlowSpan(ctx, "exchange")
	defer span.End()

	ctx, cancel := context.WithTimeout(r.c.httpContext(ctx), r.c.cfg.HTTPTimeout)
	defer cancel()

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	if tok.AccessToken == "" {
		err := errors.New("token endpoint returned no access token")
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return newTokenRecord(tok, conf), nil
}

func (c *Controller) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

// newState returns an unguessable value for the authorization state parameter.
func newState() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
