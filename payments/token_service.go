package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type TokenFetcher func(ctx context.Context) (TokenResponse, error)

// TokenCache holds an OAuth access token until five minutes before it expires.
type TokenCache struct {
	name   string
	fetch  TokenFetcher
	now    func() time.Time
	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func NewTokenCache(name string, fetch TokenFetcher) *TokenCache {
	return &TokenCache{name: name, fetch: fetch, now: time.Now}
}

func (c *TokenCache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.token != "" && c.now().Before(c.expiry) {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}

	log.Printf("Fetching new %s access token...", c.name)
	resp, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = resp.AccessToken
	c.expiry = c.now().Add(time.Duration(resp.ExpiresIn-300) * time.Second)
	log.Printf("Successfully fetched and cached %s access token.", c.name)
	return c.token, nil
}

func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// clientCredentials fetches a token with HTTP basic auth, as both PayPal and KCB Buni expect.
func clientCredentials(client *http.Client, tokenURL, key, secret string) TokenFetcher {
	return func(ctx context.Context) (TokenResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader("grant_type=client_credentials"))
		if err != nil {
			return TokenResponse{}, err
		}
		req.SetBasicAuth(key, secret)
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			return TokenResponse{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return TokenResponse{}, fmt.Errorf("token endpoint returned non-200 status: %s", resp.Status)
		}

		var tokenResp TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
			return TokenResponse{}, err
		}
		if tokenResp.AccessToken == "" {
			return TokenResponse{}, fmt.Errorf("token endpoint returned an empty access token")
		}
		return tokenResp, nil
	}
}
