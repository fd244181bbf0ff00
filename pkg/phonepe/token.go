package phonepe

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

// expirySkew treats a token as expired slightly early so it never lapses mid-request.
const expirySkew = 30 * time.Second

// TokenProvider yields a valid access token for the checkout APIs.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// OAuthTokenProvider caches the client-credentials token and refreshes it lazily
// once it expires. One instance is shared by every caller in the process.
type OAuthTokenProvider struct {
	transport *httpclient.Client
	authURL   string
	form      url.Values
	now       func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewOAuthTokenProvider validates the credentials and returns an empty cache.
func NewOAuthTokenProvider(cfg config.PhonePeConfig, transport *httpclient.Client) (*OAuthTokenProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("phonepe client id and secret are required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, errors.New("phonepe auth url is required")
	}
	if transport == nil {
		return nil, errors.New("http transport is required")
	}
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("client_version", cfg.ClientVersion)
	form.Set("grant_type", "client_credentials")
	return &OAuthTokenProvider{
		transport: transport,
		authURL:   cfg.AuthURL,
		form:      form,
		now:       time.Now,
	}, nil
}

// Token returns the cached token, fetching a new one when it has expired. The
// mutex is held across the fetch so concurrent callers share one refresh.
func (p *OAuthTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expiresAt.Add(-expirySkew)) {
		return p.token, nil
	}

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := p.transport.DoJSON(ctx, httpclient.Request{
		Operation: "oauth_token",
		Method:    http.MethodPost,
		URL:       p.authURL,
		Header:    header,
		Body:      []byte(p.form.Encode()),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("phonepe token response missing access_token")
	}

	p.token = resp.AccessToken
	switch {
	case resp.ExpiresAt > 0:
		p.expiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		p.expiresAt = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		p.expiresAt = p.now().Add(expirySkew * 2)
	}
	return p.token, nil
}

// Invalidate drops the cached token, forcing a refresh on the next call.
func (p *OAuthTokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}
