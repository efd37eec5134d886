package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiGetDecodesSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	original := serverAddr
	serverAddr = srv.URL
	defer func() { serverAddr = original }()

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, apiGet("/whatever", &out))
	assert.True(t, out.OK)
}

func TestApiPostSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"name required"}`))
	}))
	defer srv.Close()

	original := serverAddr
	serverAddr = srv.URL
	defer func() { serverAddr = original }()

	err := apiPost("/api/projects", map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name required")
}
