package middleware

import (
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/zots0127/filevault/internal/domain/entities"
)

const (
	// ServiceTokenHeader selects the trusted service principal
	ServiceTokenHeader = "X-Service-Token"
	// AuthCookie is read when no Authorization header is present
	AuthCookie = "auth_token"

	principalKey = "principal"
)

var (
	ErrNoCredentials       = errors.New("no credentials presented")
	ErrInvalidServiceToken = errors.New("invalid service token")
	ErrInvalidToken        = errors.New("invalid token")
	ErrNoVerificationKey   = errors.New("no JWT verification key configured")
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	ServiceToken    string `json:"-"`
	Algorithm       string `json:"algorithm"`
	Issuer          string `json:"issuer"`
	Audience        string `json:"audience"`
	PublicKeyPath   string `json:"public_key_path"`
	PublicKeyBase64 string `json:"-"`
	Secret          string `json:"-"`
	KeyID           string `json:"key_id"`
}

// Claims are the JWT claims the service reads. The owner id travels in
// user_id; sub is the fallback.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

// Authentication resolves each request to a Principal
type Authentication struct {
	config    AuthConfig
	publicKey *rsa.PublicKey
	secret    []byte
	logger    Logger
}

// NewAuthentication loads the verification key for the configured algorithm.
// RS256 needs a PEM public key from a path or base64; HS256 needs a secret.
// With neither, only the service token authenticates.
func NewAuthentication(config AuthConfig, logger Logger) (*Authentication, error) {
	if config.Algorithm == "" {
		config.Algorithm = jwt.SigningMethodRS256.Alg()
	}
	a := &Authentication{config: config, logger: logger}

	switch config.Algorithm {
	case jwt.SigningMethodRS256.Alg():
		pem, err := loadPEM(config)
		if err != nil {
			return nil, err
		}
		if pem != nil {
			key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
			if err != nil {
				return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
			}
			a.publicKey = key
		}
	case jwt.SigningMethodHS256.Alg():
		if config.Secret != "" {
			a.secret = []byte(config.Secret)
		}
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm %q", config.Algorithm)
	}
	return a, nil
}

func loadPEM(config AuthConfig) ([]byte, error) {
	if config.PublicKeyPath != "" {
		data, err := os.ReadFile(config.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key: %w", err)
		}
		return data, nil
	}
	if config.PublicKeyBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(config.PublicKeyBase64))
		if err != nil {
			return nil, fmt.Errorf("failed to decode JWT public key: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

// Middleware resolves the principal and stores it on the context. Requests
// without credentials continue anonymously; bad credentials are rejected.
func (a *Authentication) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := a.Authenticate(c.Request)
		switch {
		case errors.Is(err, ErrNoCredentials):
		case err != nil:
			a.logger.Warn("authentication failed",
				"error", err.Error(),
				"client_ip", GetClientIP(c),
				"path", c.Request.URL.Path,
				"request_id", GetRequestID(c),
			)
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		default:
			c.Set(principalKey, principal)
		}
		c.Next()
	}
}

// RequireAuth rejects requests that Middleware left anonymous
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c).Authenticated() {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the resolved principal, or the anonymous zero value
func PrincipalFrom(c *gin.Context) entities.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(entities.Principal); ok {
			return p
		}
	}
	return entities.Principal{}
}

// Authenticate checks the service token first, then a bearer JWT from the
// Authorization header or the auth cookie.
func (a *Authentication) Authenticate(r *http.Request) (entities.Principal, error) {
	if token := r.Header.Get(ServiceTokenHeader); token != "" {
		if a.config.ServiceToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.config.ServiceToken)) != 1 {
			return entities.Principal{}, ErrInvalidServiceToken
		}
		return entities.ServicePrincipal(), nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return entities.Principal{}, ErrNoCredentials
	}
	userID, err := a.parse(raw)
	if err != nil {
		return entities.Principal{}, err
	}
	return entities.UserPrincipal(userID), nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):])
		}
		return ""
	}
	if cookie, err := r.Cookie(AuthCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (a *Authentication) parse(raw string) (string, error) {
	if a.publicKey == nil && a.secret == nil {
		return "", ErrNoVerificationKey
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{a.config.Algorithm})}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.config.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if a.publicKey != nil {
			return a.publicKey, nil
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", fmt.Errorf("%w: token carries no user id", ErrInvalidToken)
	}
	return userID, nil
}

// JWK is one RSA public key in JSON Web Key form
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the document served at /.well-known/jwks.json
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKS publishes the configured RSA key. ok is false when none is loaded.
func (a *Authentication) JWKS() (JWKS, bool) {
	if a.publicKey == nil {
		return JWKS{}, false
	}
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Kid: a.config.KeyID,
		Use: "sig",
		Alg: jwt.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(a.publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(a.publicKey.E)).Bytes()),
	}}}, true
}
