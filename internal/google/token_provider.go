package google

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// CredentialProvider hands a valid credential to downstream API wrappers.
// Controller is the production implementation.
type CredentialProvider interface {
	GetValidCredential(ctx context.Context) (*TokenRecord, error)
}

// StaticCredentialProvider always returns the same record. It lets callers
// that already hold a record satisfy CredentialProvider.
type StaticCredentialProvider struct {
	Record *TokenRecord
}

// GetValidCredential returns the wrapped record.
func (p StaticCredentialProvider) GetValidCredential(context.Context) (*TokenRecord, error) {
	if p.Record == nil {
		return nil, ErrTokenNotFound
	}
	return p.Record, nil
}

// NewHTTPClient returns an HTTP client that authenticates with ts.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	client.Transport.(*oauth2.Transport).Base = newTransport()
	return client
}

// newTransport returns the traced HTTP/1.1 transport shared by the token
// endpoint and the API clients.
func newTransport() http.RoundTripper {
	return otelhttp.NewTransport(&http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	})
}

// HTTPClientFor fetches a valid credential from p and returns an
// authenticated client for it.
func HTTPClientFor(ctx context.Context, p CredentialProvider) (*http.Client, error) {
	rec, err := p.GetValidCredential(ctx)
	if err != nil {
		return nil, err
	}
	return NewHTTPClient(ctx, rec.StaticTokenSource()), nil
}
