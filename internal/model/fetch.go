package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"inferd/internal/retry"
	"inferd/pkg/types"
)

// defaultHubBase is the weights host used for remote repos.
const defaultHubBase = "https://huggingface.co"

// httpFetcher downloads weights over plain HTTP(S). Failures are classified
// structurally via retry.StatusError so the retry manager never has to fall
// back to message matching for our own requests.
type httpFetcher struct {
	base   string
	client *http.Client
}

func newHTTPFetcher() *httpFetcher {
	return &httpFetcher{
		base: defaultHubBase,
		client: &http.Client{
			// Per-request deadline comes from ctx; this is a safety net.
			Timeout: 30 * time.Minute,
		},
	}
}

// Fetch downloads src into dest, writing through a temp file so a partial
// download never shadows the cache entry.
func (f *httpFetcher) Fetch(ctx context.Context, src types.ModelSource, dest string) error {
	url := f.base + "/" + src.Repo + "/resolve/main/" + path.Join(src.Folder, src.Filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{
			Code:       resp.StatusCode,
			Msg:        "fetching " + url,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
