package forge

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestAppJWTClaims(t *testing.T) {
	key := testKey(t)
	s := newTokenSource(12345, key, "", nil)

	signed, err := s.appJWT()
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Method)
		}
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, "12345", claims.Issuer)
	assert.True(t, claims.IssuedAt.Before(time.Now()), "iat is backdated")
	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, 9*time.Minute)
	assert.LessOrEqual(t, remaining, 10*time.Minute)
}

func tokenServer(t *testing.T, expiresIn time.Duration) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var mints atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.Header.Get("Authorization"), "Bearer ")

		n := mints.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      fmt.Sprintf("ghs_token_%d", n),
			"expires_at": time.Now().Add(expiresIn),
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &mints
}

func TestInstallationTokenCached(t *testing.T) {
	srv, mints := tokenServer(t, time.Hour)
	s := newTokenSource(1, testKey(t), srv.URL, srv.Client())

	tok1, err := s.installationToken(context.Background(), 42)
	require.NoError(t, err)
	tok2, err := s.installationToken(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int64(1), mints.Load())
}

func TestInstallationTokenPerInstallation(t *testing.T) {
	srv, mints := tokenServer(t, time.Hour)
	s := newTokenSource(1, testKey(t), srv.URL, srv.Client())

	_, err := s.installationToken(context.Background(), 42)
	require.NoError(t, err)
	_, err = s.installationToken(context.Background(), 43)
	require.NoError(t, err)

	assert.Equal(t, int64(2), mints.Load())
}

func TestInstallationTokenConcurrentCallersShareMint(t *testing.T) {
	var mints atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mints.Add(1)
		time.Sleep(20 * time.Millisecond) // keep the mint in flight while callers pile up
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_shared",
			"expires_at": time.Now().Add(time.Hour),
		})
	}))
	t.Cleanup(srv.Close)

	s := newTokenSource(1, testKey(t), srv.URL, srv.Client())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.installationToken(context.Background(), 42)
			assert.NoError(t, err)
			assert.Equal(t, "ghs_shared", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), mints.Load(), "concurrent callers collapse into one mint")
}

func TestInstallationTokenStalledMintDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/installations/42/") {
			<-release // installation 42's mint hangs until released
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_ok",
			"expires_at": time.Now().Add(time.Hour),
		})
	}))
	t.Cleanup(srv.Close)

	s := newTokenSource(1, testKey(t), srv.URL, srv.Client())

	stalled := make(chan error, 1)
	go func() {
		_, err := s.installationToken(context.Background(), 42)
		stalled <- err
	}()

	// While installation 42 is stuck in its mint request, installation 43
	// must still get a token promptly.
	done := make(chan error, 1)
	go func() {
		_, err := s.installationToken(context.Background(), 43)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("token mint for another installation blocked behind a stalled one")
	}

	close(release)
	require.NoError(t, <-stalled)
}

func TestInstallationTokenRefreshesNearExpiry(t *testing.T) {
	// Tokens come back with less lifetime than the slack requires, so
	// every call mints a new one.
	srv, mints := tokenServer(t, 30*time.Second)
	s := newTokenSource(1, testKey(t), srv.URL, srv.Client())

	_, err := s.installationToken(context.Background(), 42)
	require.NoError(t, err)
	_, err = s.installationToken(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(2), mints.Load())
}
