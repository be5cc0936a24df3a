package discovery_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"docket/internal/discovery"
	"docket/internal/documents"
	"docket/internal/ratelimit"
	"docket/internal/testsupport"
)

func newFetcher(t *testing.T) (*discovery.HTTPFetcher, *ratelimit.MemoryBackend) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	// Keep the pacing floor negligible so tests never sleep.
	cfg.RateLimit.BaseDelayMS = 1
	cfg.RateLimit.MinDelayMS = 1
	backend := ratelimit.NewMemoryBackend()
	limiter := ratelimit.NewLimiter(cfg, backend, nil)
	return discovery.NewHTTPFetcher(cfg, limiter, nil), backend
}

func TestFetchStoresDocumentWithHash(t *testing.T) {
	body := []byte("%PDF-1.7 fake court order")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	fetcher, backend := newFetcher(t)
	doc := documents.Document{ID: "court/1", SourceID: "court", Title: "Order", URL: server.URL + "/order.pdf"}

	fetched, err := fetcher.Fetch(context.Background(), doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched.MimeType != "application/pdf" {
		t.Fatalf("expected content type adopted, got %q", fetched.MimeType)
	}
	if fetched.RetrievedAt.IsZero() {
		t.Fatal("expected RetrievedAt set")
	}
	stored, err := os.ReadFile(fetched.LocalPath)
	if err != nil {
		t.Fatalf("read stored document: %v", err)
	}
	if string(stored) != string(body) {
		t.Fatal("stored bytes differ from response body")
	}
	sum := sha256.Sum256(body)
	if fetched.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash mismatch: %s", fetched.SHA256)
	}

	state, err := backend.State(context.Background(), fetched.Domain())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.TotalRequests != 1 || state.InBackoff {
		t.Fatalf("expected one successful request recorded, got %+v", state)
	}
}

func TestFetchRateLimitResponseWidensDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher, backend := newFetcher(t)
	doc := documents.Document{ID: "court/1", SourceID: "court", Title: "Order", URL: server.URL + "/order.pdf"}

	_, err := fetcher.Fetch(context.Background(), doc)
	var fetchErr *discovery.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", fetchErr.StatusCode)
	}
	if fetchErr.RetryIn < 7*time.Second {
		t.Fatalf("expected Retry-After honored, got %v", fetchErr.RetryIn)
	}

	state, err := backend.State(context.Background(), doc.Domain())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !state.InBackoff || state.RateLimitHits != 1 {
		t.Fatalf("expected backoff recorded, got %+v", state)
	}
	if state.TotalRequests != 1 {
		t.Fatalf("expected the issued request counted, got %+v", state)
	}
}

func TestFetchRejectsDocumentWithoutURL(t *testing.T) {
	fetcher, _ := newFetcher(t)
	if _, err := fetcher.Fetch(context.Background(), documents.Document{ID: "x"}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
