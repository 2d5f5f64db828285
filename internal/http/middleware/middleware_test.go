package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/observability"
)

func TestChain(t *testing.T) {
	t.Run("should apply the first middleware outermost", func(t *testing.T) {
		var order []string
		tag := func(name string) middleware.Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		handler := middleware.Chain(tag("a"), tag("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			order = append(order, "handler")
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, []string{"a", "b", "handler"}, order)
	})
}

func TestTrace(t *testing.T) {
	var seen string
	handler := middleware.Trace()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	t.Run("should generate a request id", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		require.Equal(t, seen, rec.Header().Get("X-Request-Id"))
		require.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
	})

	t.Run("should keep a caller supplied request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req-42")

		handler.ServeHTTP(rec, req)

		require.Equal(t, "req-42", seen)
		require.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	})
}

func TestBuildMiddlewareChain(t *testing.T) {
	t.Run("should recover from handler panics", func(t *testing.T) {
		handler := middleware.BuildMiddlewareChain(&config.CORSConfig{AllowedOrigins: []string{"*"}})(
			http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		)
		rec := httptest.NewRecorder()

		require.NotPanics(t, func() {
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		})
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("should answer CORS preflight requests", func(t *testing.T) {
		handler := middleware.BuildMiddlewareChain(&config.CORSConfig{
			AllowedOrigins: []string{"https://app.example"},
			AllowedMethods: []string{http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		})(http.NotFoundHandler())
		req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
