// Package drive talks to the Google Drive v3 REST API: folder listing,
// file lookup, and download, all through a bounded-retry request path.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

const filesEndpoint = "https://www.googleapis.com/drive/v3/files"

// ErrNotFound reports that a folder or file is absent upstream.
var ErrNotFound = errors.New("not found")

// ErrRateLimited reports an HTTP 429 from the API.
var ErrRateLimited = errors.New("rate limited")

// StatusError reports an unexpected non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs Drive API calls with up to maxRetries attempts per
// call. A 429 backs off linearly (delay, 2*delay, ...); any other
// failure waits a flat delay between attempts.
type Client struct {
	hc         HTTPClient
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewClient creates a Client with the default HTTP client, 3 attempts,
// and a 2-second base delay.
func NewClient(apiKey string, log *slog.Logger) *Client {
	return &Client{
		hc:         http.DefaultClient,
		apiKey:     apiKey,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		log:        log,
	}
}

// NewClientWith creates a Client with a custom HTTP client and retry
// timing (useful for testing).
func NewClientWith(hc HTTPClient, apiKey string, maxRetries int, retryDelay time.Duration, log *slog.Logger) *Client {
	return &Client{
		hc:         hc,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log,
	}
}

// backoff returns the retry policy for one logical request: stop after
// maxRetries attempts; a rate-limited attempt waits delay*(n), other
// failures wait the flat delay.
func (c *Client) backoff(lastErr *error) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		if attempt >= c.maxRetries {
			return 0, true
		}
		if errors.Is(*lastErr, ErrRateLimited) {
			wait := c.retryDelay * time.Duration(attempt)
			c.log.Warn("rate limited", "wait", wait, "attempt", attempt)
			return wait, false
		}
		return c.retryDelay, false
	})
}

func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, timeout time.Duration, out any) error {
	var lastErr error
	err := retry.Do(ctx, c.backoff(&lastErr), func(ctx context.Context) error {
		err := c.doOnce(ctx, rawURL, params, timeout, func(body io.Reader) error {
			return json.NewDecoder(body).Decode(out)
		})
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, rawURL string, params url.Values, timeout time.Duration, consume func(io.Reader) error) error {
	if c.apiKey != "" {
		params = cloneValues(params)
		params.Set("key", c.apiKey)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return consume(resp.Body)
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &StatusError{Code: resp.StatusCode}
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// Folder is one subfolder returned by a children listing.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// File is one file entry from a listing.
type File struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileInfo describes a located schedule file.
type FileInfo struct {
	ID           string
	Name         string
	Version      string // raw modifiedTime token, opaque
	ModifiedTime string // display form, dd.mm.yyyy hh:mm
	Size         string // display form, "N.N KB"
	ViewLink     string
	DownloadLink string
}

func sharedDriveParams(query, fields string) url.Values {
	return url.Values{
		"q":                         {query},
		"fields":                    {fields},
		"supportsAllDrives":         {"true"},
		"includeItemsFromAllDrives": {"true"},
	}
}

// ListSubfolders returns the folders directly under folderID.
func (c *Client) ListSubfolders(ctx context.Context, folderID string) ([]Folder, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='application/vnd.google-apps.folder' and trashed=false", folderID)
	params := sharedDriveParams(query, "files(id, name)")
	params.Set("orderBy", "name")

	var data struct {
		Files []Folder `json:"files"`
	}
	if err := c.getJSON(ctx, filesEndpoint, params, 10*time.Second, &data); err != nil {
		return nil, err
	}
	return data.Files, nil
}

// ListPDFs returns the PDF files directly under folderID, ordered by name.
func (c *Client) ListPDFs(ctx context.Context, folderID string) ([]File, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='application/pdf' and trashed=false", folderID)
	params := sharedDriveParams(query, "files(id, name)")
	params.Set("orderBy", "name")
	params.Set("pageSize", "1000")

	var data struct {
		Files []File `json:"files"`
	}
	if err := c.getJSON(ctx, filesEndpoint, params, 15*time.Second, &data); err != nil {
		return nil, err
	}
	return data.Files, nil
}

// FindFile looks up a file by exact name inside folderID. Returns
// ErrNotFound when no such file exists.
func (c *Client) FindFile(ctx context.Context, folderID, name string) (*FileInfo, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", folderID, name)
	params := sharedDriveParams(query, "files(id, name, modifiedTime, size, webViewLink, webContentLink)")

	var data struct {
		Files []struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			ModifiedTime   string `json:"modifiedTime"`
			Size           string `json:"size"`
			WebViewLink    string `json:"webViewLink"`
			WebContentLink string `json:"webContentLink"`
		} `json:"files"`
	}
	if err := c.getJSON(ctx, filesEndpoint, params, 10*time.Second, &data); err != nil {
		return nil, err
	}
	if len(data.Files) == 0 {
		return nil, fmt.Errorf("file %q in %s: %w", name, folderID, ErrNotFound)
	}

	f := data.Files[0]
	info := &FileInfo{
		ID:           f.ID,
		Name:         f.Name,
		Version:      f.ModifiedTime,
		ModifiedTime: "unknown",
		ViewLink:     f.WebViewLink,
		DownloadLink: f.WebContentLink,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		info.ModifiedTime = t.Format("02.01.2006 15:04")
	}
	if bytes, err := strconv.ParseInt(f.Size, 10, 64); err == nil {
		info.Size = fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return info, nil
}

// Download fetches the file content and writes it to destPath.
func (c *Client) Download(ctx context.Context, fileID, destPath string) error {
	rawURL := fmt.Sprintf("%s/%s", filesEndpoint, url.PathEscape(fileID))
	params := url.Values{"alt": {"media"}}

	var lastErr error
	err := retry.Do(ctx, c.backoff(&lastErr), func(ctx context.Context) error {
		err := c.doOnce(ctx, rawURL, params, 30*time.Second, func(body io.Reader) error {
			f, err := os.Create(destPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", destPath, err)
			}
			if _, err := io.Copy(f, body); err != nil {
				_ = f.Close()
				_ = os.Remove(destPath)
				return fmt.Errorf("write %s: %w", destPath, err)
			}
			return f.Close()
		})
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", fileID, err)
	}
	return nil
}
