package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultSourceURL is CelesTrak's full active-satellite catalog in
// three-line form.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

const (
	defaultTimeout = 30 * time.Second

	// maxBodyBytes caps a single response. The active catalog is a few MB.
	maxBodyBytes = 50 << 20
)

var tracer = otel.Tracer("github.com/star/orbitview/internal/tle")

// Fetcher retrieves raw TLE text from a primary source plus optional extra
// sources whose output is appended.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL. An empty URL selects
// DefaultSourceURL.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// SetTimeout bounds every request made by f. Non-positive values are ignored.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.httpClient.Timeout = d
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves the primary source and then each extra source. A failing
// primary fails the fetch; a failing extra is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "catalog.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("catalog.source", f.sourceURL),
		attribute.Int("catalog.extra_sources", len(f.extraURLs)),
	)

	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra catalog source failed, skipping", "url", u, "error", err)
			continue
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		body = append(body, extra...)
	}

	span.SetAttributes(attribute.Int("catalog.bytes", len(body)))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if n > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	return buf.Bytes(), nil
}
