package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"docket/internal/config"
	"docket/internal/documents"
	"docket/internal/logging"
	"docket/internal/ratelimit"
)

// userAgent identifies the crawler to remote hosts.
const userAgent = "docket/1.0 (+https://github.com/docket-project/docket)"

// Fetcher retrieves one document's raw bytes.
type Fetcher interface {
	// Fetch downloads the document and returns it with LocalPath, SHA256,
	// MimeType, and RetrievedAt filled in.
	Fetch(ctx context.Context, doc documents.Document) (documents.Document, error)
}

// FetchError carries the HTTP status of a failed download plus how long the
// rate limiter wants the domain left alone.
type FetchError struct {
	URL        string
	StatusCode int
	RetryIn    time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d (retry in %s)", e.URL, e.StatusCode, e.RetryIn)
}

// HTTPFetcher downloads documents over HTTP, paced by the per-domain rate
// limiter and stored under the configured document directory.
type HTTPFetcher struct {
	client      *http.Client
	limiter     *ratelimit.Limiter
	documentDir string
	logger      *slog.Logger
}

// NewHTTPFetcher builds a fetcher from configuration.
func NewHTTPFetcher(cfg *config.Config, limiter *ratelimit.Limiter, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client:      &http.Client{Timeout: 2 * time.Minute},
		limiter:     limiter,
		documentDir: cfg.Paths.DocumentDir,
		logger:      logging.NewComponentLogger(logger, "fetcher"),
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Fetch implements Fetcher. Requests are counted when issued and their
// outcomes recorded on the document's domain: 429/403/Retry-After
// responses widen the delay, successes recover it while backed off.
func (f *HTTPFetcher) Fetch(ctx context.Context, doc documents.Document) (documents.Document, error) {
	domain := doc.Domain()
	if domain == "" {
		return doc, fmt.Errorf("document %s has no usable URL %q", doc.ID, doc.URL)
	}
	if err := f.limiter.Wait(ctx, domain); err != nil {
		return doc, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return doc, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	f.limiter.RecordRequest(ctx, domain)
	resp, err := f.client.Do(req)
	if err != nil {
		f.limiter.RecordFailure(ctx, domain, 0, 0, doc.URL)
		return doc, fmt.Errorf("fetch %s: %w", doc.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		wait := f.limiter.RecordFailure(ctx, domain, resp.StatusCode, retryAfter, doc.URL)
		return doc, &FetchError{URL: doc.URL, StatusCode: resp.StatusCode, RetryIn: wait}
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType != "" {
		doc.MimeType = mediaType
	}

	target := documents.StoragePath(f.documentDir, doc)
	sum, err := storeBody(target, resp.Body)
	if err != nil {
		f.limiter.RecordFailure(ctx, domain, 0, 0, doc.URL)
		return doc, err
	}
	f.limiter.RecordSuccess(ctx, domain)

	doc.LocalPath = target
	doc.SHA256 = sum
	doc.RetrievedAt = time.Now().UTC()
	f.logger.Debug("document stored",
		logging.String(logging.FieldItemKey, doc.ID),
		logging.String("path", target),
	)
	return doc, nil
}

// storeBody streams the response to disk while hashing it, writing through
// a temp file so a failed download never leaves a partial document behind.
func storeBody(target string, body io.Reader) (string, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".fetch-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), body); err != nil {
		return "", fmt.Errorf("download body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("flush download: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("move document into place: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
