package middleware

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/pkg/errors"
	"github.com/jwalitptl/booking-engine/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromCtx, _ = c.Request.Context().Value(logger.RequestIDKey{}).(string)
		c.Status(http.StatusOK)
	})

	w := perform(r, http.MethodGet, "/", map[string]string{HeaderXRequestID: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "abc-123", fromCtx)

	w = perform(r, http.MethodGet, "/", nil)
	assert.Len(t, w.Header().Get(HeaderXRequestID), 36)
	assert.Equal(t, w.Header().Get(HeaderXRequestID), fromCtx)
}

func TestErrorHandlerRendersAttachedError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(errors.Conflict("slot already booked", nil))
	})
	r.GET("/internal", func(c *gin.Context) {
		_ = c.Error(errors.Internal(stderrors.New("pq: connection reset")))
	})
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.Validation("bad"))
		c.JSON(http.StatusTeapot, gin.H{"status": "custom"})
	})

	w := perform(r, http.MethodGet, "/conflict", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "slot already booked")

	w = perform(r, http.MethodGet, "/internal", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	w = perform(r, http.MethodGet, "/written", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestRecoveryReturns500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(), Timeout(TimeoutConfig{Duration: 10 * time.Millisecond}))
	r.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		<-c.Request.Context().Done()
		_ = c.Error(c.Request.Context().Err())
	})

	w := perform(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestTimeoutDisabled(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(TimeoutConfig{}))
	r.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.False(t, ok)
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", nil).Code)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = perform(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardEchoesOriginWithCredentials(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/", map[string]string{"Origin": "https://any.example.com"})
	assert.Equal(t, "https://any.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))
}

type staticTokens map[string]model.Actor

func (s staticTokens) ValidateToken(token string) (model.Actor, error) {
	if a, ok := s[token]; ok {
		return a, nil
	}
	return model.Actor{}, stderrors.New("invalid token")
}

func TestAuthenticate(t *testing.T) {
	m := NewAuthMiddleware(staticTokens{
		"doc":   {Role: model.RolePractitioner, ID: 7},
		"admin": {Role: model.RoleAdmin, ID: 1},
	})
	r := gin.New()
	r.Use(m.Authenticate())
	r.GET("/me", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, actor)
	})
	r.GET("/admin", m.RequireRole(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		path   string
		want   int
	}{
		{"missing header", "", "/me", http.StatusUnauthorized},
		{"wrong scheme", "Basic doc", "/me", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", "/me", http.StatusUnauthorized},
		{"valid", "Bearer doc", "/me", http.StatusOK},
		{"lowercase scheme", "bearer doc", "/me", http.StatusOK},
		{"role mismatch", "Bearer doc", "/admin", http.StatusForbidden},
		{"role match", "Bearer admin", "/admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			w := perform(r, http.MethodGet, tc.path, headers)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestActorFromMissing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := ActorFrom(c)
	assert.False(t, ok)
}

func TestLoggerDoesNotInterfere(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	assert.Equal(t, http.StatusAccepted, perform(r, http.MethodGet, "/?a=b", nil).Code)
}

