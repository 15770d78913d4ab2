// Package filehost talks to the bot file-hosting API that stores the actual
// video files. The API exposes getFile, which exchanges an opaque file id for
// a short-lived download path, and a direct download endpoint for that path.
package filehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrFileNotFound is returned when the host reports the file id invalid
	// or the download path no longer resolves.
	ErrFileNotFound = errors.New("filehost: file not found")

	// ErrUnavailable is returned for transport failures and non-success
	// statuses other than 404/410.
	ErrUnavailable = errors.New("filehost: upstream unavailable")
)

// Locator is a short-lived handle to a hosted file. Download paths expire on
// the host's side, so locators must be re-resolved per use and never cached.
type Locator struct {
	Path string
	Size int64
}

// Download is an open byte stream from the host. The caller owns Body and
// must close it.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Client is an HTTP client for the bot file API.
type Client struct {
	apiBase  string
	botToken string
	chatID   string       // storage chat holding the video files
	resolve  *http.Client // bounded total timeout for getFile calls
	fetch    *http.Client // connect-bounded only; transfers can be long
}

// New constructs a Client. chatID identifies the storage chat the deployment's
// files live in; lookups are scoped to it. connectTimeout bounds dialing for
// both resolve and fetch calls; resolveTimeout additionally bounds the whole
// getFile exchange. Fetch transfers are not given a total deadline because
// playback can run for hours; cancellation comes from the request context.
func New(apiBase, botToken, chatID string, connectTimeout, resolveTimeout time.Duration) *Client {
	dial := (&net.Dialer{Timeout: connectTimeout}).DialContext
	return &Client{
		apiBase:  apiBase,
		botToken: botToken,
		chatID:   chatID,
		resolve: &http.Client{
			Timeout:   resolveTimeout,
			Transport: &http.Transport{DialContext: dial},
		},
		fetch: &http.Client{
			Transport: &http.Transport{
				DialContext:           dial,
				ResponseHeaderTimeout: resolveTimeout,
			},
		},
	}
}

type getFileResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FilePath string `json:"file_path"`
		FileSize int64  `json:"file_size"`
	} `json:"result"`
	Description string `json:"description"`
}

// ResolveFile exchanges a file id for a fresh download locator, scoped to the
// deployment's storage chat.
func (c *Client) ResolveFile(ctx context.Context, fileID string) (Locator, error) {
	q := url.Values{"file_id": {fileID}, "chat_id": {c.chatID}}
	u := fmt.Sprintf("%s/bot%s/getFile?%s", c.apiBase, c.botToken, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Locator{}, fmt.Errorf("filehost: build getFile request: %w", err)
	}

	resp, err := c.resolve.Do(req)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var body getFileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Locator{}, fmt.Errorf("%w: decode getFile response: %v", ErrUnavailable, err)
	}
	if !body.OK || body.Result.FilePath == "" {
		// The API answers 400 with ok=false for unknown file ids.
		return Locator{}, ErrFileNotFound
	}

	return Locator{Path: body.Result.FilePath, Size: body.Result.FileSize}, nil
}

// DirectURL returns the download URL for a resolved locator. The URL embeds
// the bot credential and must never be handed to untrusted callers directly;
// the stream proxy exists so clients never see it.
func (c *Client) DirectURL(loc Locator) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.botToken, loc.Path)
}

// FetchFile opens the byte stream behind a locator. The stream is aborted
// when ctx is cancelled.
func (c *Client) FetchFile(ctx context.Context, loc Locator) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DirectURL(loc), nil)
	if err != nil {
		return nil, fmt.Errorf("filehost: build download request: %w", err)
	}

	resp, err := c.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return &Download{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}
