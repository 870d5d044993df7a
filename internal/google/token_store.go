package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxauth/internal/logging"
)

// TokenRecord is a persisted OAuth credential. It carries the client
// identity needed to refresh it without re-reading the ClientConfig.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scopes       []string
	TokenURI     string
	ClientID     string
	ClientSecret string
}

// Fresh reports whether the access token is still usable at now.
// A record without an access token is never fresh; a zero expiry with an
// access token never expires.
func (r *TokenRecord) Fresh(now time.Time) bool {
	if r.AccessToken == "" {
		return false
	}
	return r.Expiry.IsZero() || now.Before(r.Expiry)
}

// Recoverable reports whether a stale record can be refreshed.
func (r *TokenRecord) Recoverable(now time.Time) bool {
	return !r.Fresh(now) && r.RefreshToken != ""
}

// Dead reports whether a stale record cannot be refreshed.
func (r *TokenRecord) Dead(now time.Time) bool {
	return !r.Fresh(now) && r.RefreshToken == ""
}

// OAuth2Token converts the record to an oauth2.Token.
func (r *TokenRecord) OAuth2Token() *oauth2.Token {
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    tokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry,
	}
}

// StaticTokenSource returns a token source that always yields the record's
// access token and never refreshes it.
func (r *TokenRecord) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(r.OAuth2Token())
}

// newTokenRecord builds a record from a token endpoint response. Granted
// scopes come from the response when the server reports them.
func newTokenRecord(tok *oauth2.Token, conf *oauth2.Config) *TokenRecord {
	scopes := conf.Scopes
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}
	return &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       append([]string(nil), scopes...),
		TokenURI:     conf.Endpoint.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
	}
}

// tokenFile is the on-disk JSON shape of a TokenRecord.
type tokenFile struct {
	AccessToken  string     `json:"access_token"`
	LegacyToken  string     `json:"token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Expiry       expiryTime `json:"expiry"`
	Scopes       []string   `json:"scopes"`
	TokenURI     string     `json:"token_uri"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
}

// expiryTime accepts an RFC 3339 string or epoch seconds and is written as
// RFC 3339. The zero time is written as null.
type expiryTime struct {
	time.Time
}

func (e expiryTime) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(e.UTC().Format(time.RFC3339Nano))
}

func (e *expiryTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		e.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		t, err := parseExpiryString(str)
		if err != nil {
			return err
		}
		e.Time = t
		return nil
	}
	t, err := parseEpoch(s)
	if err != nil {
		return fmt.Errorf("invalid expiry %s: %w", s, err)
	}
	e.Time = t
	return nil
}

func parseExpiryString(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Google's Python client writes naive UTC timestamps.
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := parseEpoch(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid expiry %q", s)
}

// parseEpoch parses seconds since the Unix epoch, with optional fraction.
func parseEpoch(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), nil
}

func (r *TokenRecord) toFile() tokenFile {
	return tokenFile{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       expiryTime{r.Expiry},
		Scopes:       r.Scopes,
		TokenURI:     r.TokenURI,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
	}
}

func (f tokenFile) toRecord() *TokenRecord {
	access := f.AccessToken
	if access == "" {
		access = f.LegacyToken
	}
	return &TokenRecord{
		AccessToken:  access,
		RefreshToken: f.RefreshToken,
		TokenType:    f.TokenType,
		Expiry:       f.Expiry.Time,
		Scopes:       f.Scopes,
		TokenURI:     f.TokenURI,
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
	}
}

// TokenStore persists a single TokenRecord.
type TokenStore interface {
	// Load returns the stored record or ErrTokenNotFound.
	Load() (*TokenRecord, error)

	// Save atomically replaces the stored record.
	Save(rec *TokenRecord) error
}

// FileTokenStore stores the token record as a JSON file.
//
// The parent directory is created with 0700 and the file with 0600
// permissions. Token values are never logged.
type FileTokenStore struct {
	path   string
	logger *slog.Logger
}

// NewFileTokenStore creates a store for the token file at path.
func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTokenStore{path: path, logger: logger}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the token file. A missing, unreadable or unparsable file is
// reported as ErrTokenNotFound.
func (s *FileTokenStore) Load() (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("token file unreadable", "path", s.path, logging.Err(err))
		}
		return nil, ErrTokenNotFound
	}

	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Debug("token file unparsable, ignoring", "path", s.path, logging.Err(err))
		return nil, ErrTokenNotFound
	}
	rec := f.toRecord()
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		s.logger.Debug("token file holds no token, ignoring", "path", s.path)
		return nil, ErrTokenNotFound
	}
	return rec, nil
}

// Save writes rec to a temporary file next to the target and renames it
// into place.
func (s *FileTokenStore) Save(rec *TokenRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil token record", ErrStorage)
	}

	data, err := json.MarshalIndent(rec.toFile(), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode token: %w", ErrStorage, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %w", ErrStorage, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync temp file: %w", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrStorage, s.path, err)
	}
	committed = true

	s.logger.Info("token stored",
		"path", s.path,
		logging.Expiry(rec.Expiry),
		"has_refresh_token", rec.RefreshToken != "",
		"access_token", logging.SanitizeToken(rec.AccessToken),
	)
	return nil
}

// Delete removes the token file. A missing file is not an error.
func (s *FileTokenStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, s.path, err)
	}
	return nil
}
