package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/hayak-access/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key holding the caller id
	ContextKeyUserID = "user_id"
	// UserIDHeader is accepted in place of a token when AllowHeader is set
	UserIDHeader = "X-User-ID"
)

var errMissingSubject = errors.New("token has no subject")

// AuthConfig configures caller identification
type AuthConfig struct {
	Secret string
	Issuer string
	// AllowHeader trusts X-User-ID when no bearer token is sent (development)
	AllowHeader bool
}

// Auth resolves the caller from a HS256 bearer token. Authorization for the
// event itself is the upstream gateway's job.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if cfg.AllowHeader {
				if userID := c.GetHeader(UserIDHeader); userID != "" {
					c.Set(ContextKeyUserID, userID)
					c.Next()
					return
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Failure("UNAUTHORIZED", "missing bearer token"))
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Failure("UNAUTHORIZED", "malformed authorization header"))
			return
		}

		subject, err := parseSubject(tokenString, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Failure("UNAUTHORIZED", "invalid token"))
			return
		}

		c.Set(ContextKeyUserID, subject)
		c.Next()
	}
}

func parseSubject(tokenString string, cfg AuthConfig) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

// GetUserID returns the caller id set by Auth
func GetUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
