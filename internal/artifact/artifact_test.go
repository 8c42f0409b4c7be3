package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/httpx"
)

func TestDownload(t *testing.T) {
	payload := []byte("#!/bin/sh\necho agent\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "daemon")
	d := NewDownloader(5*time.Second, zap.NewNop())
	require.NoError(t, d.Download(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), "downloaded agent must be executable")

	_, err = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(err), "partial file must not remain")
}

func TestDownload_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "daemon")
	d := NewDownloader(5*time.Second, zap.NewNop())
	err := d.Download(context.Background(), srv.URL, dest)
	require.Error(t, err)

	var se *httpx.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "no file may appear on a failed download")
}

func TestDownload_FailureKeepsExistingBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "daemon")
	existing := []byte("previous build")
	require.NoError(t, os.WriteFile(dest, existing, 0o755))

	d := NewDownloader(5*time.Second, zap.NewNop())
	require.Error(t, d.Download(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, existing, data, "existing binary must be untouched after a failed download")
}

func TestDownload_UnreachableHost(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "daemon")
	d := NewDownloader(500*time.Millisecond, zap.NewNop())
	require.Error(t, d.Download(context.Background(), "http://127.0.0.1:1/daemon", dest))
}
