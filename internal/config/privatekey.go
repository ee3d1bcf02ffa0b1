package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// LoadPrivateKey resolves the app's RSA signing key. The key may arrive
// base64-encoded, as raw PEM, or as a file path; base64 decoding is tried
// first and falls back to treating the value as literal PEM.
func (c *Config) LoadPrivateKey() (*rsa.PrivateKey, error) {
	raw := c.App.PrivateKey
	if raw == "" {
		data, err := os.ReadFile(c.App.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file: %w", err)
		}
		raw = string(data)
	}

	pemText := raw
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw)); err == nil {
		pemText = string(decoded)
	}

	return parsePEMKey(pemText)
}

func parsePEMKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	// GitHub app keys are PKCS#1; tolerate PKCS#8 as well.
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}
