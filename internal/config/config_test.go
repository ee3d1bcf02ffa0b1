package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 3, cfg.Queue.Concurrency)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.OpenAI.MaxTokens)
	assert.Equal(t, 10, cfg.Review.MaxInlineComments)
	assert.Equal(t, 85, cfg.Review.RiskThreshold)
	assert.InDelta(t, 0.5, cfg.Review.ConfidenceThreshold, 1e-9)
	assert.True(t, cfg.Tools.ESLint)
	assert.True(t, cfg.Tools.Secrets)
	assert.Equal(t, 300, cfg.Tools.SemgrepTimeout)
	assert.True(t, cfg.OSV.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_ID", "12345")
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("PORT", "8080")
	t.Setenv("RISK_THRESHOLD", "70")
	t.Setenv("ENABLE_GOSEC", "false")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(12345), cfg.App.ID)
	assert.Equal(t, "s3cret", cfg.App.WebhookSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 70, cfg.Review.RiskThreshold)
	assert.False(t, cfg.Tools.Gosec)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-ant-test", cfg.LLM.Anthropic.APIKey)
}

func TestValidateRequiresIdentity(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Error(t, cfg.Validate())

	cfg.App.ID = 1
	cfg.App.WebhookSecret = "s"
	cfg.App.PrivateKey = "pem"
	assert.NoError(t, cfg.Validate())

	cfg.Queue.Backend = "broker"
	assert.Error(t, cfg.Validate(), "broker backend requires BROKER_URL")

	cfg.Queue.BrokerURL = "postgres://localhost/sentinel"
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "frontier"
	assert.Error(t, cfg.Validate())
}

func testKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block)), key
}

func TestLoadPrivateKeyRawPEM(t *testing.T) {
	pemText, want := testKeyPEM(t)
	var cfg Config
	cfg.App.PrivateKey = pemText

	got, err := cfg.LoadPrivateKey()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestLoadPrivateKeyBase64(t *testing.T) {
	pemText, want := testKeyPEM(t)
	var cfg Config
	cfg.App.PrivateKey = base64.StdEncoding.EncodeToString([]byte(pemText))

	got, err := cfg.LoadPrivateKey()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestLoadPrivateKeyFromPath(t *testing.T) {
	pemText, want := testKeyPEM(t)
	path := filepath.Join(t.TempDir(), "app.pem")
	require.NoError(t, os.WriteFile(path, []byte(pemText), 0o600))

	var cfg Config
	cfg.App.PrivateKeyPath = path

	got, err := cfg.LoadPrivateKey()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestLoadPrivateKeyGarbage(t *testing.T) {
	var cfg Config
	cfg.App.PrivateKey = "not a key"
	_, err := cfg.LoadPrivateKey()
	assert.Error(t, err)
}
