// Package auth provides credential sources for mail and calendar backends.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"doppel/internal/domain"
)

// RefreshFunc obtains fresh credentials from the upstream identity provider.
type RefreshFunc func(ctx context.Context) (domain.Credentials, error)

// expirySkew is how long before actual expiry a token is treated as stale,
// so a token never expires mid-request.
const expirySkew = 2 * time.Minute

// FileCache implements domain.Authorizer with an on-disk credential cache.
// Tokens survive restarts; refresh only runs when the cached token is
// missing or within the skew window of expiry.
type FileCache struct {
	mu      sync.Mutex
	path    string
	refresh RefreshFunc
	cached  *domain.Credentials
}

// NewFileCache returns a cache persisting credentials at path.
func NewFileCache(path string, refresh RefreshFunc) *FileCache {
	return &FileCache{path: path, refresh: refresh}
}

// Token implements domain.Authorizer.
func (c *FileCache) Token(ctx context.Context) (domain.Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached == nil {
		if creds, err := c.loadFromDisk(); err == nil {
			c.cached = &creds
		}
	}

	if c.cached != nil && !c.cached.Expired(expirySkew) {
		return *c.cached, nil
	}

	creds, err := c.refresh(ctx)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: refresh token: %v", domain.ErrAuthInvalid, err)
	}
	if creds.AccessToken == "" {
		return domain.Credentials{}, fmt.Errorf("%w: refresh returned empty token", domain.ErrAuthInvalid)
	}

	c.cached = &creds
	if err := c.saveToDisk(creds); err != nil {
		// A failed cache write is not fatal; the token is still valid.
		return creds, nil
	}
	return creds, nil
}

func (c *FileCache) loadFromDisk() (domain.Credentials, error) {
	var creds domain.Credentials
	data, err := os.ReadFile(c.path)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, err
	}
	return creds, nil
}

func (c *FileCache) saveToDisk(creds domain.Credentials) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// Static returns an Authorizer that always yields the same credentials.
// Used by the file-backed mail and calendar providers, which need no auth.
func Static(token string) domain.Authorizer {
	return staticAuthorizer{creds: domain.Credentials{AccessToken: token}}
}

type staticAuthorizer struct {
	creds domain.Credentials
}

func (s staticAuthorizer) Token(context.Context) (domain.Credentials, error) {
	return s.creds, nil
}
