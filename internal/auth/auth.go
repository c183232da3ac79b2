package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Credential is a bearer token (or, for legacy sessions, a raw cookie
// header) attached to every API request.
type Credential struct {
	Kind  string // "bearer" or "cookie"
	Value string
}

const KindBearer = "bearer"

type Config struct {
	BaseURL     string // OAuth host, e.g. https://studio.marianatek.com
	ClientID    string
	RedirectURI string
	Email       string
	Password    string
	CachePath   string
}

// Provider acquires and caches bearer credentials, performing the
// PKCE authorization-code flow against the studio's OAuth endpoint
// when no usable cached token exists.
type Provider struct {
	cfg    Config
	hc     *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	invalidated bool
}

func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg: cfg,
		hc: &http.Client{
			Timeout: 15 * time.Second,
			// The login flow inspects redirects itself.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Credential returns a valid credential, refreshing or re-logging-in
// as needed. Safe for concurrent use; at most one login runs at a time.
func (p *Provider) Credential(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.invalidated {
		if cached, ok := loadCache(p.cfg.CachePath); ok {
			// Refresh ahead of expiry when a refresh token exists.
			if cached.RefreshToken != "" && time.Until(cached.ExpiresAt) < time.Hour {
				if tok, err := p.refresh(ctx, cached.RefreshToken); err == nil {
					saveCache(p.cfg.CachePath, tok, p.logger)
					return Credential{Kind: KindBearer, Value: tok.AccessToken}, nil
				}
				p.logger.Info("token refresh failed, falling back to full login")
			} else {
				p.logger.Debug("using cached credential")
				return cached.Credential, nil
			}
		}
	}

	tok, err := p.login(ctx)
	if err != nil {
		return Credential{}, err
	}
	saveCache(p.cfg.CachePath, tok, p.logger)
	p.invalidated = false
	return Credential{Kind: KindBearer, Value: tok.AccessToken}, nil
}

// Invalidate drops the cached credential so the next acquisition
// performs a fresh login. Called when the API rejects a request with
// 401/403.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = true
	removeCache(p.cfg.CachePath, p.logger)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (p *Provider) refresh(ctx context.Context, refreshToken string) (tokenResponse, error) {
	p.logger.Info("refreshing access token")
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	return p.postToken(ctx, form)
}

var csrfRe = regexp.MustCompile(`name="csrfmiddlewaretoken" value="([^"]+)"`)

// login walks the PKCE authorization-code flow: fetch the login page
// for a CSRF token, post credentials, chase the redirect through
// /o/authorize/ to the callback carrying the code, then exchange the
// code for tokens.
func (p *Provider) login(ctx context.Context) (tokenResponse, error) {
	if p.cfg.Email == "" || p.cfg.Password == "" {
		return tokenResponse{}, fmt.Errorf("login email and password must be configured")
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return tokenResponse{}, err
	}

	authorize := url.Values{
		"client_id":             {p.cfg.ClientID},
		"response_type":         {"code"},
		"response_mode":         {"query"},
		"scope":                 {"read:account"},
		"redirect_uri":          {p.cfg.RedirectURI},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	loginNext := "/o/authorize/?" + authorize.Encode()
	loginURL := p.cfg.BaseURL + "/auth/login/?next=" + url.QueryEscape(loginNext)

	p.logger.Info("logging in")

	// Login page: CSRF token + session cookies.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return tokenResponse{}, err
	}
	res, err := p.hc.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("fetch login page: %w", err)
	}
	page, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return tokenResponse{}, err
	}
	m := csrfRe.FindSubmatch(page)
	if m == nil {
		return tokenResponse{}, fmt.Errorf("no CSRF token on login page (status=%d)", res.StatusCode)
	}
	pageCookies := cookieHeader(res.Cookies())

	// Submit credentials; success is a 302 to the authorize endpoint.
	form := url.Values{
		"csrfmiddlewaretoken": {string(m[1])},
		"username":            {p.cfg.Email},
		"password":            {p.cfg.Password},
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", pageCookies)
	req.Header.Set("Referer", p.cfg.BaseURL+"/auth/login/")
	res, err = p.hc.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("submit login: %w", err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		return tokenResponse{}, fmt.Errorf("login rejected (status=%d), check credentials", res.StatusCode)
	}
	allCookies := joinCookies(pageCookies, cookieHeader(res.Cookies()))

	redirect := res.Header.Get("Location")
	if redirect == "" {
		return tokenResponse{}, fmt.Errorf("login succeeded but no redirect returned")
	}
	if strings.HasPrefix(redirect, "/") {
		redirect = p.cfg.BaseURL + redirect
	}

	// Authorize endpoint 302s to the callback with ?code=...
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, redirect, nil)
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Cookie", allCookies)
	res, err = p.hc.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("authorize: %w", err)
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		return tokenResponse{}, fmt.Errorf("authorize did not redirect (status=%d)", res.StatusCode)
	}
	callback, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("callback url: %w", err)
	}
	code := callback.Query().Get("code")
	if code == "" {
		return tokenResponse{}, fmt.Errorf("no authorization code in callback")
	}

	tok, err := p.postToken(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.cfg.ClientID},
		"code":          {code},
		"redirect_uri":  {p.cfg.RedirectURI},
		"code_verifier": {verifier},
	})
	if err != nil {
		return tokenResponse{}, err
	}
	p.logger.Info("login successful")
	return tok, nil
}

func (p *Provider) postToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/o/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := p.hc.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return tokenResponse{}, err
	}
	if res.StatusCode >= 400 {
		return tokenResponse{}, fmt.Errorf("token endpoint status=%d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var tok tokenResponse
	if err := unmarshalToken(body, &tok); err != nil {
		return tokenResponse{}, err
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("token endpoint returned no access token")
	}
	return tok, nil
}

func generatePKCE() (verifier, challenge string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func joinCookies(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
