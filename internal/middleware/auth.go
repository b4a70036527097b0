package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/proprios/search-api/internal/config"
)

const (
	ContextOrganizationID = "organization_id"
	ContextUserID         = "user_id"
	ContextIsAdmin        = "is_admin"
)

// Claims is the token payload. Every request acts for one user inside one
// organization; admins additionally manage platform-scoped resources.
type Claims struct {
	OrganizationID uuid.UUID `json:"org_id"`
	UserID         uuid.UUID `json:"user_id"`
	Admin          bool      `json:"admin"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
	expiry time.Duration
}

func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	expiry := time.Duration(cfg.ExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthMiddleware{secret: []byte(cfg.Secret), expiry: expiry}
}

// GenerateToken issues a signed token for a user.
func (m *AuthMiddleware) GenerateToken(orgID, userID uuid.UUID, admin bool) (string, error) {
	claims := Claims{
		OrganizationID: orgID,
		UserID:         userID,
		Admin:          admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiry)),
			Subject:   userID.String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken parses and verifies a signed token.
func (m *AuthMiddleware) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authenticate verifies the bearer token and stores the caller's identity in
// the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "missing authorization header",
			})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid authorization format",
			})
			return
		}

		claims, err := m.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid token",
			})
			return
		}

		c.Set(ContextOrganizationID, claims.OrganizationID)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextIsAdmin, claims.Admin)
		c.Next()
	}
}

// RequireAdmin gates the platform administration surface.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    http.StatusForbidden,
				Message: "administrator access required",
			})
			return
		}
		c.Next()
	}
}

// OrganizationID reads the authenticated organization from the context.
func OrganizationID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextOrganizationID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// UserID reads the authenticated user from the context.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
