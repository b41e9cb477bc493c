package gdrive

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"momentsstudio/pkg/domain"
)

// TokenProvider hands out a bearer token for Drive calls.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenConfig holds the long-lived OAuth client credentials.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// TokenURL defaults to Google's OAuth2 token endpoint.
	TokenURL   string
	HTTPClient *http.Client
}

// RefreshTokenProvider exchanges the configured refresh token on every
// call. Nothing is cached between calls.
type RefreshTokenProvider struct {
	clientID     string
	clientSecret string
	refreshToken string
	tokenURL     string
	httpClient   *http.Client
}

// NewRefreshTokenProvider never fails; missing credentials are reported
// by AccessToken so the service can still serve reads.
func NewRefreshTokenProvider(cfg TokenConfig) *RefreshTokenProvider {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RefreshTokenProvider{
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		refreshToken: strings.TrimSpace(cfg.RefreshToken),
		tokenURL:     tokenURL,
		httpClient:   httpClient,
	}
}

// Configured reports whether all three credentials are present.
func (p *RefreshTokenProvider) Configured() bool {
	return p.clientID != "" && p.clientSecret != "" && p.refreshToken != ""
}

// AccessToken performs a refresh_token grant against the token endpoint.
func (p *RefreshTokenProvider) AccessToken(ctx context.Context) (string, error) {
	if !p.Configured() {
		return "", domain.NewError(domain.ErrConfiguration, "Missing Google Drive credentials", nil)
	}
	conf := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken}).Token()
	if err != nil {
		return "", domain.NewError(domain.ErrUpstreamAuth, refreshFailureMessage(err), err)
	}
	if tok.AccessToken == "" {
		return "", domain.NewError(domain.ErrUpstreamAuth, "Failed to refresh access token", nil)
	}
	return tok.AccessToken, nil
}

func refreshFailureMessage(err error) string {
	const msg = "Failed to refresh access token"
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		detail := strings.TrimSpace(re.ErrorDescription)
		if detail == "" {
			detail = strings.TrimSpace(re.ErrorCode)
		}
		if detail != "" {
			return msg + ": " + detail
		}
	}
	return msg
}
