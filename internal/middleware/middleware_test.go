package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/cache"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/util"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := perform(router, http.MethodGet, "/", nil)
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	w = perform(router, http.MethodGet, "/", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCorrelationFallsBackToRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware(), CorrelationMiddleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := perform(router, http.MethodGet, "/", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", w.Header().Get("X-Correlation-ID"))

	w = perform(router, http.MethodGet, "/", map[string]string{"X-Correlation-ID": "order-42"})
	assert.Equal(t, "order-42", w.Header().Get("X-Correlation-ID"))
}

type staticTokens map[string]*models.Profile

func (s staticTokens) ValidateToken(_ context.Context, token string) (*models.Profile, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, errors.New("invalid token")
}

func TestAuthMiddleware(t *testing.T) {
	tokens := staticTokens{"good": {ID: "u1", Email: "a@b.fr"}}
	router := gin.New()
	router.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetString(util.ContextUserID), "token": util.GetTokenFromContext(c)})
	})

	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/me", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer bad"}).Code)

	w := perform(router, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer good"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u1","token":"good"}`, w.Body.String())
}

func TestOptionalAuthMiddleware(t *testing.T) {
	tokens := staticTokens{"good": {ID: "u1"}}
	router := gin.New()
	router.GET("/", OptionalAuthMiddleware(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(util.ContextUserID))
	})

	w := perform(router, http.MethodGet, "/", map[string]string{"Authorization": "Bearer bad"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = perform(router, http.MethodGet, "/", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, "u1", w.Body.String())
}

func TestRateLimiterPerKey(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(RateLimitConfig{Name: "test", Rate: rate.Limit(1), Burst: 2})
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have separate buckets")

	clock = clock.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refills per second")
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	m := metrics.Get()
	before := testutil.ToFloat64(m.RateLimitExceededTotal.WithLabelValues("burst-test"))

	router := gin.New()
	router.Use(RateLimit("burst-test", 0.001, 2))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/", nil).Code)
	w := perform(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, before+1, testutil.ToFloat64(m.RateLimitExceededTotal.WithLabelValues("burst-test")))
}

func TestRedisRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	router := gin.New()
	router.POST("/signin", RedisRateLimitMiddleware(rc, "signin", 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, perform(router, http.MethodPost, "/signin", nil).Code)
	w := perform(router, http.MethodPost, "/signin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = perform(router, http.MethodPost, "/signin", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodPost, "/signin", nil).Code)

	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, perform(router, http.MethodPost, "/signin", nil).Code)
}

func TestRedisRateLimitWithoutRedis(t *testing.T) {
	router := gin.New()
	router.GET("/", RedisRateLimitMiddleware(nil, "signin", 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/", nil).Code)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	m := metrics.Get()
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/products/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })

	perform(router, http.MethodGet, "/products/p1", nil)
	perform(router, http.MethodGet, "/products/p2", nil)
	perform(router, http.MethodGet, "/nowhere", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/products/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestRedactQuery(t *testing.T) {
	assert.Equal(t, "limit=5&token=%5Bredacted%5D", redactQuery("token=secret&limit=5"))
	assert.Empty(t, redactQuery(""))
}

func TestGinLoggerDoesNotAlterResponse(t *testing.T) {
	router := gin.New()
	router.Use(GinLoggerMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusTeapot, "tea") })
	w := perform(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "tea", w.Body.String())
}
