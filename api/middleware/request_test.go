package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/pkg/logger"
)

func TestRequestIDEchoesOrReplaces(t *testing.T) {
	h := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	long := strings.Repeat("x", maxRequestIDLen+1)
	cases := map[string]bool{
		"trace-abc-123": true,
		"":              false,
		"has space":     false,
		long:            false,
		"caf\u00e9":     false,
	}
	for in, kept := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, in)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)

		got := resp.Header().Get(requestIDHeader)
		require.NotEmpty(t, got)
		if kept {
			assert.Equal(t, in, got)
		} else {
			assert.NotEqual(t, in, got)
		}
	}
}

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf})
	h := Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "nil map")
	assert.Contains(t, buf.String(), "stack")
}

func TestRecovererReraisesAbort(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf})
	h := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"bytes":5`)
	assert.Contains(t, out, "request.complete")
}

func TestPrincipalHelpersKeepEarlierFields(t *testing.T) {
	ctx := WithUserID(context.Background(), "3b7e1c52-8d2f-4a51-9a3e-5c1d2b7f9e10")
	ctx = WithRole(ctx, "seller")
	ctx = WithStoreID(ctx, "store-1")

	assert.Equal(t, "seller", RoleFromContext(ctx))
	assert.Equal(t, "store-1", StoreIDFromContext(ctx))
	id, ok := UserUUIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "3b7e1c52-8d2f-4a51-9a3e-5c1d2b7f9e10", id.String())

	_, ok = UserUUIDFromContext(WithRole(context.Background(), "customer"))
	assert.False(t, ok)
}
