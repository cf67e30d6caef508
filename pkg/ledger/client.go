// Package ledger is a client for the chain-of-custody ledger gateway, the
// HTTP facade in front of the ChainOfCustody contract. The gateway assigns
// evidence identifiers; this client never generates them. Anchoring blocks
// until the write is durably confirmed or a bounded wait elapses — there is
// no automatic retry, a timeout is the caller's to resolve.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnreachable: the gateway cannot be connected to at all.
	ErrUnreachable = errors.New("ledger unreachable")
	// ErrTimeout: the anchor was submitted but confirmation did not arrive
	// within the bounded wait. The write may still land; resubmission is
	// reconciled by the caller's idempotency rule.
	ErrTimeout = errors.New("ledger confirmation timeout")
	// ErrRejected: the gateway refused the write.
	ErrRejected = errors.New("ledger rejected anchor")
)

// AnchorResult is the durable outcome of a confirmed anchor.
type AnchorResult struct {
	EvidenceID int64  `json:"evidenceId"`
	TxHash     string `json:"txHash"`
}

// OriginalRecord is what the ledger returns for a previously anchored
// identifier. Exists=false means no anchor was ever recorded for that id; it
// is a valid outcome, not an error.
type OriginalRecord struct {
	Hash      string `json:"hash"`
	Collector string `json:"collector"`
	Timestamp int64  `json:"timestamp"`
	Exists    bool   `json:"exists"`
}

// Client talks to one ledger gateway. Construct it once and inject it;
// there is no package-level state.
type Client struct {
	baseURL      string
	httpc        *http.Client
	confirmWait  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewClient builds a ledger client. confirmWait bounds how long Anchor waits
// for confirmation (the original deployment used two minutes); pollInterval
// is how often the transaction status is re-read while waiting.
func NewClient(baseURL string, confirmWait, pollInterval time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpc:        &http.Client{Timeout: 30 * time.Second},
		confirmWait:  confirmWait,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

type anchorRequest struct {
	Hash      string `json:"hash"`
	Collector string `json:"collector"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
}

type txStatusResponse struct {
	Status     string `json:"status"` // pending | confirmed | failed
	EvidenceID int64  `json:"evidenceId"`
}

// Anchor submits anchorDigest under collector and blocks until the gateway
// confirms the write. The connection is probed first so a dead gateway is
// reported as ErrUnreachable before anything is submitted.
func (c *Client) Anchor(ctx context.Context, anchorDigest, collector string) (AnchorResult, error) {
	if err := c.Ping(ctx); err != nil {
		return AnchorResult{}, err
	}

	body, err := json.Marshal(anchorRequest{Hash: anchorDigest, Collector: collector})
	if err != nil {
		return AnchorResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evidence", bytes.NewReader(body))
	if err != nil {
		return AnchorResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return AnchorResult{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return AnchorResult{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return AnchorResult{}, fmt.Errorf("ledger anchor: unexpected status %d", resp.StatusCode)
	}
	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return AnchorResult{}, fmt.Errorf("ledger anchor: decoding response: %w", err)
	}
	if sub.TxHash == "" {
		return AnchorResult{}, fmt.Errorf("ledger anchor: no transaction hash in response")
	}

	return c.awaitConfirmation(ctx, sub.TxHash)
}

// awaitConfirmation polls the transaction until it is confirmed, fails, or
// the bounded wait runs out.
func (c *Client) awaitConfirmation(ctx context.Context, txHash string) (AnchorResult, error) {
	deadline := time.Now().Add(c.confirmWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.txStatus(ctx, txHash)
		if err != nil {
			return AnchorResult{}, err
		}
		switch st.Status {
		case "confirmed":
			return AnchorResult{EvidenceID: st.EvidenceID, TxHash: txHash}, nil
		case "failed":
			return AnchorResult{}, fmt.Errorf("%w: transaction %s failed", ErrRejected, txHash)
		}
		if time.Now().After(deadline) {
			c.logger.Warn("anchor confirmation wait exceeded",
				zap.String("tx", txHash), zap.Duration("waited", c.confirmWait))
			return AnchorResult{}, fmt.Errorf("%w after %s (tx %s)", ErrTimeout, c.confirmWait, txHash)
		}
		select {
		case <-ctx.Done():
			return AnchorResult{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) txStatus(ctx context.Context, txHash string) (txStatusResponse, error) {
	var st txStatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transactions/"+txHash, nil)
	if err != nil {
		return st, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return st, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("ledger tx status: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("ledger tx status: decoding response: %w", err)
	}
	return st, nil
}

// LookupOriginal reads the anchored record for evidenceID. A missing anchor
// comes back with Exists=false and a nil error.
func (c *Client) LookupOriginal(ctx context.Context, evidenceID int64) (OriginalRecord, error) {
	var rec OriginalRecord
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/evidence/%d", c.baseURL, evidenceID), nil)
	if err != nil {
		return rec, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return OriginalRecord{Exists: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return rec, fmt.Errorf("ledger lookup: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return rec, fmt.Errorf("ledger lookup: decoding response: %w", err)
	}
	return rec, nil
}

// Ping checks the gateway answers at all (head-of-chain read).
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/head", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w at %s: status %d", ErrUnreachable, c.baseURL, resp.StatusCode)
	}
	return nil
}
