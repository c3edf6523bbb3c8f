package httptransport

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainOrderAndCORS(t *testing.T) {
	var buf bytes.Buffer
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Chain(inner, RequestLogger(log.New(&buf, "", 0)), CORS("http://localhost:5173"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/favorites", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, buf.String(), "GET /v1/favorites 418")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/favorites", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Contains(t, buf.String(), "OPTIONS /v1/favorites 204")
}

func TestWildcardOriginOmitsCredentials(t *testing.T) {
	h := CORS("*")(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestDefaultServerConfig(t *testing.T) {
	srv := NewServer(DefaultServerConfig(":0"), http.NotFoundHandler())
	require.Equal(t, ":0", srv.Addr)
	require.NotZero(t, srv.ReadTimeout)
}
