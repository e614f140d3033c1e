// Package credentials supplies the secret sent in the feed's auth request.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

var (
	ErrNoSecret = errors.New("no secret configured")
)

// Source returns the secret for the next connection attempt.
type Source interface {
	Secret(ctx context.Context) (string, error)
}

// Env reads the secret from an environment variable on every call.
type Env string

func (e Env) Secret(ctx context.Context) (string, error) {
	v := os.Getenv(string(e))
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoSecret, string(e))
	}
	return v, nil
}

// Static is a fixed secret.
type Static string

func (s Static) Secret(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoSecret
	}
	return string(s), nil
}

// TokenResponse represents a response from the token service
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenService fetches the secret from a token service and caches it until
// it expires.
type TokenService struct {
	client      *http.Client
	serviceURL  string
	accountType string
	now         func() time.Time

	mu     sync.Mutex
	cached *TokenResponse
}

// NewTokenService creates a source backed by the token service at serviceURL.
func NewTokenService(serviceURL, accountType string) *TokenService {
	return &TokenService{
		client:      &http.Client{Timeout: 30 * time.Second},
		serviceURL:  serviceURL,
		accountType: accountType,
		now:         time.Now,
	}
}

// Secret returns the cached token or requests a new one.
func (s *TokenService) Secret(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Before(s.cached.ExpiresAt) {
		return s.cached.AccessToken, nil
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: token service returned an empty token", ErrNoSecret)
	}
	s.cached = token
	return token.AccessToken, nil
}

func (s *TokenService) fetch(ctx context.Context) (*TokenResponse, error) {
	reqBody, err := json.Marshal(map[string]string{
		"account_type": s.accountType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/token", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token service returned error: %s", bytes.TrimSpace(body))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &token, nil
}
