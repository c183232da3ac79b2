package auth

import (
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"
)

type cachedToken struct {
	Credential   Credential `json:"auth"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CachedAt     time.Time  `json:"cached_at"`
}

func loadCache(path string) (cachedToken, bool) {
	if path == "" {
		return cachedToken{}, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cachedToken{}, false
	}
	var c cachedToken
	if err := json.Unmarshal(b, &c); err != nil {
		return cachedToken{}, false
	}
	if time.Now().After(c.ExpiresAt) {
		return cachedToken{}, false
	}
	return c, true
}

func saveCache(path string, tok tokenResponse, logger *zap.Logger) {
	if path == "" {
		return
	}
	c := cachedToken{
		Credential:   Credential{Kind: KindBearer, Value: tok.AccessToken},
		RefreshToken: tok.RefreshToken,
		// Expire a minute early so a token is never used mid-request.
		ExpiresAt: time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute),
		CachedAt:  time.Now(),
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		logger.Warn("could not write token cache", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("token cached", zap.Duration("expires_in", time.Until(c.ExpiresAt)))
}

func removeCache(path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err == nil {
		logger.Info("cached credentials invalidated")
	}
}

func unmarshalToken(body []byte, tok *tokenResponse) error {
	return json.Unmarshal(body, tok)
}
