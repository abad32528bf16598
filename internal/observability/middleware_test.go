package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "json")

	handler := RecoverMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body["error_kind"])
	assert.Contains(t, buf.String(), "panic_recovered")
}

func TestRequestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "json")

	handler := RequestLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.7:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "http_request", record["msg"])
	assert.Equal(t, float64(http.StatusTeapot), record["status"])
	assert.Equal(t, "203.0.113.7", record["ip"])
}

func TestClientIP_IgnoresForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 198.51.100.2 ")
	assert.Equal(t, "192.0.2.1", ClientIP(req))
}

func TestRealIPMiddleware(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		trusted    []netip.Prefix
		remoteAddr string
		forwarded  []string
		want       string
	}{
		{name: "no trusted proxies", trusted: nil, remoteAddr: "10.0.0.5:1000", forwarded: []string{"198.51.100.2"}, want: "10.0.0.5"},
		{name: "untrusted peer", trusted: trusted, remoteAddr: "203.0.113.9:1000", forwarded: []string{"198.51.100.2"}, want: "203.0.113.9"},
		{name: "trusted peer", trusted: trusted, remoteAddr: "10.0.0.5:1000", forwarded: []string{"198.51.100.2"}, want: "198.51.100.2"},
		{name: "spoofed leftmost hop", trusted: trusted, remoteAddr: "10.0.0.5:1000", forwarded: []string{"1.2.3.4, 198.51.100.2, 10.0.0.7"}, want: "198.51.100.2"},
		{name: "garbage hop", trusted: trusted, remoteAddr: "10.0.0.5:1000", forwarded: []string{"not-an-ip"}, want: "10.0.0.5"},
		{name: "only trusted hops", trusted: trusted, remoteAddr: "10.0.0.5:1000", forwarded: []string{"10.1.1.1"}, want: "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := RealIPMiddleware(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, v := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}
