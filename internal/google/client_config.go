package google

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ClientConfig is the OAuth client identity issued by the authorization
// server. It is loaded once per run and never modified.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthURI      string
	TokenURI     string
	RedirectURIs []string
}

// OAuth2Config builds the oauth2.Config for the given scopes and redirect URL.
func (c *ClientConfig) OAuth2Config(scopes []string, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURI,
			TokenURL:  c.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      scopes,
	}
}

// ClientConfigSource loads the OAuth client identity.
type ClientConfigSource interface {
	Load() (*ClientConfig, error)
}

// FileClientConfigSource reads the credentials JSON downloaded from the
// Google Cloud console.
type FileClientConfigSource struct {
	Path string
}

// NewFileClientConfigSource creates a source reading from path.
func NewFileClientConfigSource(path string) *FileClientConfigSource {
	return &FileClientConfigSource{Path: path}
}

type clientSecretsFile struct {
	Installed *clientIdentity `json:"installed"`
	Web       *clientIdentity `json:"web"`
}

type clientIdentity struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// Load reads and validates the credentials file. Any problem is reported as
// ErrConfigurationMissing.
func (s *FileClientConfigSource) Load() (*ClientConfig, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationMissing, s.Path, err)
	}
	return parseClientConfig(data)
}

func parseClientConfig(data []byte) (*ClientConfig, error) {
	var f clientSecretsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrConfigurationMissing, err)
	}

	id := f.Installed
	if id == nil {
		id = f.Web
	}
	if id == nil {
		return nil, fmt.Errorf("%w: no \"installed\" or \"web\" client block", ErrConfigurationMissing)
	}
	if id.ClientID == "" || id.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", ErrConfigurationMissing)
	}

	cfg := &ClientConfig{
		ClientID:     id.ClientID,
		ClientSecret: id.ClientSecret,
		AuthURI:      id.AuthURI,
		TokenURI:     id.TokenURI,
		RedirectURIs: id.RedirectURIs,
	}
	if cfg.AuthURI == "" {
		cfg.AuthURI = google.Endpoint.AuthURL
	}
	if cfg.TokenURI == "" {
		cfg.TokenURI = google.Endpoint.TokenURL
	}
	return cfg, nil
}
