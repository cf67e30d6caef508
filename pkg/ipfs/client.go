// Package ipfs is a thin client for the kubo RPC API. Only the handful of
// operations the custody workflows need are implemented: a daemon probe,
// add, cat and pin. Downloads are exact-byte round trips of what was added;
// the hash-based verification contract depends on that.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable marks failures to reach the IPFS daemon at all, as opposed
// to errors returned by a reachable daemon.
var ErrUnavailable = errors.New("ipfs daemon unavailable")

// ErrNotFound is returned when the daemon cannot resolve a CID.
var ErrNotFound = errors.New("content not found")

// Client talks to a single IPFS node over its HTTP RPC API.
type Client struct {
	apiURL     string
	gatewayURL string
	httpc      *http.Client
	logger     *zap.Logger
}

// NewClient builds a client for the daemon at apiURL (e.g.
// http://localhost:5001). gatewayURL is used only to render gateway links in
// responses.
func NewClient(apiURL, gatewayURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpc:      &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Upload stores data under name and returns the CID. The daemon is probed
// first so an unreachable node is reported as ErrUnavailable rather than a
// generic transport error. After a successful add the content is pinned
// best-effort; a pin failure degrades availability, not correctness, so it
// is logged and swallowed.
func (c *Client) Upload(ctx context.Context, data []byte, name string) (string, error) {
	if err := c.probe(ctx); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/v0/add?pin=false", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: unexpected status %d", resp.StatusCode)
	}
	var ar addResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("ipfs add: decoding response: %w", err)
	}
	if ar.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty CID in response")
	}

	if err := c.Pin(ctx, ar.Hash); err != nil {
		c.logger.Warn("could not pin uploaded content; it stays retrievable only while cached",
			zap.String("cid", ar.Hash), zap.Error(err))
	}
	return ar.Hash, nil
}

// Download retrieves the exact bytes previously stored under cid.
func (c *Client) Download(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/api/v0/cat?arg="+url.QueryEscape(cid), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusInternalServerError || resp.StatusCode == http.StatusNotFound:
		// kubo reports unknown CIDs through a 500 with an error body.
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	default:
		return nil, fmt.Errorf("ipfs cat: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Pin asks the daemon to keep cid resident (recursive pin).
func (c *Client) Pin(ctx context.Context, cid string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/api/v0/pin/add?recursive=true&arg="+url.QueryEscape(cid), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs pin: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// probe checks the daemon answers at all before a mutating call.
func (c *Client) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/v0/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrUnavailable, c.apiURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w at %s: status %d", ErrUnavailable, c.apiURL, resp.StatusCode)
	}
	return nil
}

// GatewayURL returns the configured gateway link for a CID.
func (c *Client) GatewayURL(cid string) string {
	return c.gatewayURL + "/ipfs/" + cid
}

// PublicURL returns a link on the public ipfs.io gateway.
func (c *Client) PublicURL(cid string) string {
	return "https://ipfs.io/ipfs/" + cid
}
