package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsCredential(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-token", r.URL.Path)
		assert.Equal(t, "onboarding", r.URL.Query().Get("room_name"))
		assert.Equal(t, "parent-1", r.URL.Query().Get("identity"))
		w.Write([]byte(`{"token":"jwt-abc","livekit_url":"wss://rt.example.com"}`))
	}))
	defer srv.Close()

	cred, err := NewClient(srv.URL).Fetch(context.Background(), "onboarding", "parent-1")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", cred.Token)
	assert.Equal(t, "wss://rt.example.com", cred.URL)
}

func TestFetchFailsOnMissingToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"livekit_url":"wss://rt.example.com"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "room", "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "omitted token")
}

func TestFetchFailsOnServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "room", "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestFetchFailsOnMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background(), "room", "id")
	require.Error(t, err)
}
