package forge

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// tokenExpirySlack is the minimum remaining lifetime a cached token must
// have to be handed out. Below that a fresh token is minted so long calls
// do not run into mid-flight expiry.
const tokenExpirySlack = 60 * time.Second

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// tokenSource mints installation access tokens, caching them per
// installation. It is the only cross-job shared mutable state in the
// worker: the LRU is safe for concurrent use, and the singleflight
// group collapses concurrent mints for the same installation without
// blocking mints for other installations. No lock is held across the
// mint request itself.
type tokenSource struct {
	appID  int64
	key    *rsa.PrivateKey
	apiURL string
	client *http.Client

	cache *expirable.LRU[int64, cachedToken]
	group singleflight.Group
}

func newTokenSource(appID int64, key *rsa.PrivateKey, apiURL string, client *http.Client) *tokenSource {
	return &tokenSource{
		appID:  appID,
		key:    key,
		apiURL: apiURL,
		client: client,
		cache:  expirable.NewLRU[int64, cachedToken](128, nil, 50*time.Minute),
	}
}

// appJWT signs a short-lived app-level JWT. The backdated iat absorbs
// clock skew between us and the host.
func (s *tokenSource) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(s.appID, 10),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

// installationToken returns a token for the installation, from cache when
// it still has enough lifetime left.
func (s *tokenSource) installationToken(ctx context.Context, installationID int64) (string, error) {
	if tok, ok := s.cache.Get(installationID); ok && time.Until(tok.expiresAt) >= tokenExpirySlack {
		return tok.token, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(installationID, 10), func() (any, error) {
		// A caller we queued behind may have refreshed already.
		if tok, ok := s.cache.Get(installationID); ok && time.Until(tok.expiresAt) >= tokenExpirySlack {
			return tok.token, nil
		}
		return s.mint(ctx, installationID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *tokenSource) mint(ctx context.Context, installationID int64) (string, error) {
	appJWT, err := s.appJWT()
	if err != nil {
		return "", fmt.Errorf("signing app jwt: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.apiURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("installation token request returned %s", resp.Status)
	}

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding installation token: %w", err)
	}

	s.cache.Add(installationID, cachedToken{token: body.Token, expiresAt: body.ExpiresAt})
	log.Debug().Int64("installation", installationID).Time("expires_at", body.ExpiresAt).Msg("minted installation token")

	return body.Token, nil
}
