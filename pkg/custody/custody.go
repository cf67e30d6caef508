// Package custody implements the evidence sealing and integrity-verification
// workflows: hash, store, anchor at seal time; re-fetch, re-hash, compare at
// verify time. Both sides of the comparison go through pkg/hashing so the
// transform is the same code path in each direction.
package custody

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ipfs"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/ledger"
)

// ContentStore is the content-addressed blob store (IPFS in production).
type ContentStore interface {
	Upload(ctx context.Context, data []byte, name string) (string, error)
	Download(ctx context.Context, cid string) ([]byte, error)
}

// Ledger anchors digests and returns previously anchored records.
type Ledger interface {
	Anchor(ctx context.Context, anchorDigest, collector string) (ledger.AnchorResult, error)
	LookupOriginal(ctx context.Context, evidenceID int64) (ledger.OriginalRecord, error)
}

// Service runs the workflows against injected collaborators. One instance is
// built in main and shared; it holds no mutable state of its own — the
// metadata store's uniqueness constraint on evidence_id is the only
// concurrency control the workflows rely on.
type Service struct {
	db     *gorm.DB
	store  ContentStore
	ledger Ledger
	logger *zap.Logger

	// defaultCollector is the ledger identity substituted when a collector has
	// no wallet address configured. Empty means no fallback: sealing without
	// an address fails instead of anchoring under an arbitrary identity.
	defaultCollector string
}

// NewService wires a custody service.
func NewService(db *gorm.DB, store ContentStore, lg Ledger, logger *zap.Logger, defaultCollector string) *Service {
	return &Service{db: db, store: store, ledger: lg, logger: logger, defaultCollector: defaultCollector}
}

// classifyStoreErr maps content store failures onto the error taxonomy.
func classifyStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, ipfs.ErrUnavailable):
		return E(KindStoreUnavailable, "content store unreachable", err)
	case errors.Is(err, ipfs.ErrNotFound):
		return E(KindNotFound, "content not found in store", err)
	default:
		return E(KindStoreError, "content store "+op+" failed", err)
	}
}

// classifyLedgerErr maps ledger failures onto the error taxonomy.
func classifyLedgerErr(err error, op string) error {
	switch {
	case errors.Is(err, ledger.ErrUnreachable):
		return E(KindLedgerUnreachable, "ledger unreachable", err)
	case errors.Is(err, ledger.ErrTimeout):
		return E(KindLedgerTimeout, "ledger confirmation timed out", err)
	case errors.Is(err, ledger.ErrRejected):
		return E(KindLedgerRejected, "ledger rejected the write", err)
	default:
		return E(KindInternal, "ledger "+op+" failed", err)
	}
}

// isUniqueConstraintError matches the duplicate-key shapes Postgres and
// sqlite produce through GORM.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") ||
		strings.Contains(s, "UNIQUE constraint") || strings.Contains(s, "already exists")
}
