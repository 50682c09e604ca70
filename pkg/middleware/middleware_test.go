package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingLogger struct {
	infos  []string
	errors []string
}

func (l *capturingLogger) Infow(msg string, _ ...interface{})  { l.infos = append(l.infos, msg) }
func (l *capturingLogger) Errorw(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newRouter(RequestIDMiddleware())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	generated := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "given")
	w = serve(r, req)
	assert.Equal(t, "given", w.Header().Get(RequestIDHeader))
}

func TestRecoveryAndLogger(t *testing.T) {
	log := &capturingLogger{}
	r := newRouter(LoggerMiddleware(log), RecoveryMiddleware(log))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.Equal(t, []string{"Panic recovered", "HTTP Request"}, log.errors)

	serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, []string{"HTTP Request"}, log.infos)
}

func TestBearerAuth(t *testing.T) {
	r := newRouter(BearerAuth("s3cret"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, serve(r, req).Code)
		})
	}
}

func TestBearerAuthDisabled(t *testing.T) {
	r := newRouter(BearerAuth(""))
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Code)
}
