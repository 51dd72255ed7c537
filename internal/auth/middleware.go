// Package auth resolves bearer tokens to local users for the gin API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aimd54/sales-quest/internal/config"
	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// userIDKey is the gin context key holding the authenticated local user ID.
const userIDKey = "user_id"

var errMissingToken = errors.New("missing bearer token")

// Claims are the token claims the engine reads. The subject identifies the
// user at the identity provider.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Team  string `json:"team,omitempty"`
	jwt.RegisteredClaims
}

// UserRepository interface for mapping token subjects to local users.
type UserRepository interface {
	CreateOrUpdate(user *models.User) error
}

// Middleware verifies HS256 bearer tokens.
type Middleware struct {
	secret []byte
	issuer string
	users  UserRepository
	log    *logger.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(cfg *config.AuthConfig, users UserRepository, log *logger.Logger) *Middleware {
	return &Middleware{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		users:  users,
		log:    log,
	}
}

// Handler returns the gin middleware. Requests without a valid token are
// rejected with 401 before reaching any handler.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.parse(c.GetHeader("Authorization"))
		if err != nil {
			m.log.Debug().Err(err).Str("path", c.FullPath()).Msg("Rejected request without valid token")
			abort(c, "not authenticated")
			return
		}

		user := &models.User{
			ExternalID: claims.Subject,
			Username:   claims.Name,
			Email:      claims.Email,
			Team:       claims.Team,
		}
		if user.Username == "" {
			user.Username = claims.Subject
		}

		if err := m.users.CreateOrUpdate(user); err != nil {
			m.log.Error().Err(err).Str("subject", claims.Subject).Msg("Failed to resolve user from token")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "failed to resolve user",
				"timestamp": time.Now().UTC(),
			})
			return
		}

		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

func (m *Middleware) parse(header string) (*Claims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// UserID returns the authenticated local user ID, or 0 when the request
// did not pass through the middleware.
func UserID(c *gin.Context) uint {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

// SetUserID stores an authenticated user ID on the context.
func SetUserID(c *gin.Context, id uint) {
	c.Set(userIDKey, id)
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret, issuer, subject string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Subject = subject
	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
