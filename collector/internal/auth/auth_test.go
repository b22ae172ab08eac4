package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	a := New([]string{"vgl_key_one", "vgl_key_two"}, false, nil)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{name: "valid bearer key", header: "Bearer vgl_key_one", wantErr: nil},
		{name: "valid second key", header: "Bearer vgl_key_two", wantErr: nil},
		{name: "bare key accepted", header: "vgl_key_one", wantErr: nil},
		{name: "case-insensitive scheme", header: "bearer vgl_key_one", wantErr: nil},
		{name: "missing header", header: "", wantErr: ErrMissingKey},
		{name: "empty bearer", header: "Bearer ", wantErr: ErrMissingKey},
		{name: "wrong key", header: "Bearer nope", wantErr: ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			err := a.Authenticate(r)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	a := New(nil, true, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	assert.NoError(t, a.Authenticate(r))
}

func TestMiddleware(t *testing.T) {
	a := New([]string{"vgl_key_one"}, false, nil)

	called := false
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("authorized", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		r.Header.Set("Authorization", "Bearer vgl_key_one")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unauthorized", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.False(t, called)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing API key")
	})
}

func TestHashKeyStable(t *testing.T) {
	assert.Equal(t, HashKey("abc"), HashKey("abc"))
	assert.NotEqual(t, HashKey("abc"), HashKey("abd"))
	assert.Len(t, HashKey("abc"), 64)
}
