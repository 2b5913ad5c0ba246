/**
 * @description
 * This file contains custom middleware for the HTTP router: bearer-token
 * authentication against the identity provider's JWKS, the admin role gate, and
 * the shared-key check for internal endpoints.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For RS256 token validation.
 * - github.com/google/uuid: The token subject is the profile id.
 * - golang.org/x/sync/singleflight: One JWKS fetch in flight at a time.
 *
 * @notes
 * - Keys are cached per kid and the JWKS document is refetched when an unknown kid
 *   shows up, so key rotation needs no restart. Refetches are collapsed with
 *   singleflight and spaced at least jwksMissCooldown apart.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const userIDKey UserIDContextKey = "userID"

const (
	jwksRefreshInterval = 10 * time.Minute
	jwksMissCooldown    = 30 * time.Second
)

// AuthConfig configures bearer-token validation.
type AuthConfig struct {
	JWKSURL  string
	Audience string
	Issuer   string
}

// AuthMiddleware creates a middleware that validates RS256 bearer tokens and stores the subject.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := newJWKSCache(cfg.JWKSURL, &http.Client{Timeout: 10 * time.Second})

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}
				return keys.key(r.Context(), kid)
			})
			if err != nil || !token.Valid {
				log.Printf("level=warn component=api flow=auth outcome=reject err=%v", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "User ID not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminChecker reports whether a user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// AdminOnly rejects authenticated callers without the admin role.
func AdminOnly(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			isAdmin, err := checker.IsAdmin(r.Context(), userID)
			if err != nil {
				log.Printf("level=error component=api flow=admin_gate user=%s err=%v", userID, err)
				writeError(w, http.StatusInternalServerError, "Unable to verify admin role")
				return
			}
			if !isAdmin {
				log.Printf("level=warn component=api flow=admin_gate outcome=forbidden user=%s path=%s", userID, r.URL.Path)
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InternalAuthMiddleware checks the shared key of service-to-service calls. An empty key
// disables the endpoints instead of leaving them open.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				http.Error(w, "Internal endpoints are disabled", http.StatusServiceUnavailable)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID retrieves the authenticated profile id from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	raw, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type jwksCache struct {
	url         string
	client      *http.Client
	fetches     singleflight.Group
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
	now         func() time.Time
}

func newJWKSCache(url string, client *http.Client) *jwksCache {
	return &jwksCache{url: url, client: client, keys: map[string]*rsa.PublicKey{}, now: time.Now}
}

// key returns the public key for kid. Unknown or stale kids trigger at most one
// document fetch per jwksMissCooldown, shared by every waiting request.
func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, known := c.keys[kid]
	now := c.now()
	fresh := now.Sub(c.fetchedAt) < jwksRefreshInterval
	coolingDown := now.Sub(c.attemptedAt) < jwksMissCooldown
	c.mu.RUnlock()

	if known && fresh {
		return key, nil
	}
	if !coolingDown {
		_, err, _ := c.fetches.Do("jwks", func() (interface{}, error) {
			return nil, c.refresh(context.WithoutCancel(ctx))
		})
		if err != nil && !known {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		c.mu.RLock()
		if latest, ok := c.keys[kid]; ok {
			key, known = latest, true
		}
		c.mu.RUnlock()
	}
	if known {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func (c *jwksCache) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.attemptedAt = c.now()
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "" && key.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			log.Printf("level=warn component=api flow=jwks outcome=skip_key kid=%s err=%v", key.Kid, err)
			continue
		}
		keys[key.Kid] = pub
	}
	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

// parseRSAPublicKey parses RSA public key from modulus and exponent
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}
