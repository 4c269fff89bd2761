package elements

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultSourceURL = "https://api.nasa.gov/neo/rest/v1/neo/browse?api_key=DEMO_KEY"

// maxFetchBytes caps a single response body. Browse pages are well under a
// megabyte; anything larger means a misconfigured source.
const maxFetchBytes = 50 * 1024 * 1024

// Fetcher retrieves raw small-body JSON documents from a remote source.
// Extra URLs supply additional chunks (e.g. further browse pages or a
// curated supplement) that are merged into the same dataset.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL plus optional extras.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves one raw JSON chunk per configured source. A failure on the
// primary URL is fatal; failing extras are logged and skipped so a flaky
// supplement cannot take down the refresh.
func (f *Fetcher) Fetch(ctx context.Context) ([][]byte, error) {
	primary, err := f.fetchOne(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	chunks := [][]byte{primary}
	for _, u := range f.extraURLs {
		data, err := f.fetchOne(ctx, u)
		if err != nil {
			f.logger.Warn("extra source fetch failed", "url", u, "error", err)
			continue
		}
		chunks = append(chunks, data)
	}

	return chunks, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching body data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxFetchBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxFetchBytes)
	}

	return body, nil
}

// ParseChunks parses each raw chunk and merges the results into one body
// list, deduplicating by ID (first occurrence wins). Unparseable chunks are
// logged and skipped.
func ParseChunks(chunks [][]byte, logger *slog.Logger) []Body {
	var merged []Body
	seen := make(map[string]bool)

	for i, chunk := range chunks {
		bodies, err := Parse(bytes.NewReader(chunk), logger)
		if err != nil {
			logger.Warn("skipping unparseable chunk", "chunk", i, "error", err)
			continue
		}
		for _, b := range bodies {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			merged = append(merged, b)
		}
	}

	return merged
}
