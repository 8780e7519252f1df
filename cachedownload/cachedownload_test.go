package cachedownload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"ccpm/download"
	"ccpm/lock"
)

func TestFetchCachesAndServesSecondFetchWithoutHTTP(t *testing.T) {
	body := []byte("immutable bytes")
	sum := sha256.Sum256(body)
	shaHex := hex.EncodeToString(sum[:])

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(body)
	}))
	defer srv.Close()

	cd := New(download.New(nil), t.TempDir(), lock.NewManager(t.TempDir()))
	dest1 := filepath.Join(t.TempDir(), "d1", "out.bin")
	dest2 := filepath.Join(t.TempDir(), "d2", "out.bin")
	opts := download.Options{SHA256: shaHex}

	if err := cd.Fetch(context.Background(), srv.URL, dest1, opts); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected 1 HTTP request, got %d", requests)
	}

	os.Remove(dest1)
	if err := cd.Fetch(context.Background(), srv.URL, dest2, opts); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected second fetch to serve from cache with 0 new HTTP requests, total still %d", requests)
	}

	got, err := os.ReadFile(dest2)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("got %q want %q", got, body)
	}
}

func TestFetchWithoutChecksumFallsThroughToPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no checksum"))
	}))
	defer srv.Close()

	cd := New(download.New(nil), t.TempDir(), lock.NewManager(t.TempDir()))
	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := cd.Fetch(context.Background(), srv.URL, dest, download.Options{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}
