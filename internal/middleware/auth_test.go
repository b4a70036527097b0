package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprios/search-api/internal/config"
)

func testAuth() *AuthMiddleware {
	return NewAuthMiddleware(config.JWTConfig{
		Secret:      "0123456789abcdef0123456789abcdef",
		ExpiryHours: 1,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	auth := testAuth()
	orgID := uuid.New()
	userID := uuid.New()

	token, err := auth.GenerateToken(orgID, userID, true)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, orgID, claims.OrganizationID)
	assert.Equal(t, userID, claims.UserID)
	assert.True(t, claims.Admin)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := testAuth().GenerateToken(uuid.New(), uuid.New(), false)
	require.NoError(t, err)

	other := NewAuthMiddleware(config.JWTConfig{
		Secret:      "ffffffffffffffffffffffffffffffff",
		ExpiryHours: 1,
	})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := testAuth().ValidateToken("not.a.token")
	assert.Error(t, err)
}

func authRouter(auth *AuthMiddleware, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/", auth.Authenticate())
	if admin {
		group.Use(auth.RequireAdmin())
	}
	group.GET("/whoami", func(c *gin.Context) {
		orgID, ok := OrganizationID(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"org_id": orgID})
	})
	return r
}

func TestAuthenticateStoresIdentity(t *testing.T) {
	auth := testAuth()
	token, err := auth.GenerateToken(uuid.New(), uuid.New(), false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	authRouter(auth, false).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := authRouter(testAuth(), false)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer bad-token"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestRequireAdminBlocksMembers(t *testing.T) {
	auth := testAuth()
	router := authRouter(auth, true)

	memberToken, err := auth.GenerateToken(uuid.New(), uuid.New(), false)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, err := auth.GenerateToken(uuid.New(), uuid.New(), true)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
