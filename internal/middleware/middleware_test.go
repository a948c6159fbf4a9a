package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/service"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

type staticVerifier struct {
	claims *models.JWTClaims
}

func (s staticVerifier) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newGuardedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	verifier := staticVerifier{claims: &models.JWTClaims{UserID: "usr-1", Role: models.RoleMentor}}
	r.GET("/guarded", JWT(verifier), RequireRoles(roles...), func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"user": claims.(*models.JWTClaims).UserID})
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	r := newGuardedRouter(models.RoleMentor)
	cases := map[string]struct {
		header string
		status int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"not bearer":     {"Basic abc", http.StatusUnauthorized},
		"bad token":      {"Bearer nope", http.StatusUnauthorized},
		"valid":          {"Bearer good", http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	r := newGuardedRouter(models.RoleAdmin)
	req, _ := http.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/open", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodGet, "/open", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/batches/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodGet, "/batches/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, metrics.Snapshot().RequestsTotal)
}
