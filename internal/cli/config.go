package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config is where mailctl finds the server and its API token
type Config struct {
	ServerURL string
	Token     string
	TokenFile string
	Output    string
}

// DefaultConfig reads PROXYMAIL_SERVER, PROXYMAIL_TOKEN and
// PROXYMAIL_TOKEN_FILE, falling back to a local server and ~/.proxymail/token
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("PROXYMAIL_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("PROXYMAIL_TOKEN"),
		TokenFile: getEnvOrDefault("PROXYMAIL_TOKEN_FILE", defaultTokenFile()),
		Output:    "text",
	}
}

// LoadToken reads the token file unless a token was given directly. A server
// without token auth needs no file.
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read token file: %w", err)
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken stores the plaintext API token, readable only by the user
func (c *Config) SaveToken(token string) error {
	c.Token = token

	if err := os.MkdirAll(filepath.Dir(c.TokenFile), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.TokenFile, []byte(token), 0o600)
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proxymail/token"
	}
	return filepath.Join(home, ".proxymail", "token")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
