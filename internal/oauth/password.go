package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenUnavailable is returned when no valid token has been exchanged yet.
var ErrTokenUnavailable = errors.New("oauth token unavailable")

// PasswordSource exchanges resource-owner credentials for bearer tokens and
// caches the most recent one.
type PasswordSource struct {
	decl       Declaration
	httpClient *http.Client
	config     *oauth2.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func NewPasswordSource(decl Declaration, httpClient *http.Client) (*PasswordSource, error) {
	if decl.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if decl.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &PasswordSource{
		decl:       decl,
		httpClient: httpClient,
		config: &oauth2.Config{
			ClientID: decl.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  decl.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(decl.Scope),
		},
	}, nil
}

// Exchange runs a password grant and replaces the cached token.
func (s *PasswordSource) Exchange(ctx context.Context, username, password string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.config.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		exchangeFailure.WithLabelValues(s.decl.Provider).Inc()
		tokenValid.WithLabelValues(s.decl.Provider).Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return nil, fmt.Errorf("token exchange failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	exchangeSuccess.WithLabelValues(s.decl.Provider).Inc()
	tokenValid.WithLabelValues(s.decl.Provider).Set(1)
	return token, nil
}

// AccessToken returns the cached access token if it is still valid.
func (s *PasswordSource) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || !s.token.Valid() {
		tokenValid.WithLabelValues(s.decl.Provider).Set(0)
		return "", ErrTokenUnavailable
	}
	return s.token.AccessToken, nil
}

// Token returns a copy of the cached token, or nil.
func (s *PasswordSource) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	copied := *s.token
	return &copied
}
