package custody

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/hashing"
)

// SealRequest carries everything the seal workflow needs about one file and
// the collector submitting it.
type SealRequest struct {
	Data        []byte
	FileName    string
	FileType    string
	Description string
	Latitude    *float64
	Longitude   *float64
	CapturedAt  time.Time

	Collector *models.User
}

// Seal runs the sealing workflow: digest, upload, anchor, reconcile against
// any existing record for the ledger-assigned identifier, persist. Any step
// failing aborts with nothing persisted, with one accepted inconsistency:
// bytes already written to the content store are not retracted when the
// anchor subsequently fails, leaving an orphaned unanchored blob. Upload
// deliberately precedes anchoring so a failed upload can never produce an
// on-chain record with no retrievable content.
func (s *Service) Seal(ctx context.Context, req SealRequest) (*models.Evidence, error) {
	if len(req.Data) == 0 {
		return nil, E(KindValidation, "no file content", nil)
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, E(KindValidation, "gps coordinates must be given as a latitude/longitude pair", nil)
	}

	collectorAddress, err := s.resolveCollectorAddress(req.Collector)
	if err != nil {
		return nil, err
	}

	fileDigest := hashing.Digest(req.Data)
	anchorDigest := hashing.AnchorDigest(fileDigest)

	cid, err := s.store.Upload(ctx, req.Data, req.FileName)
	if err != nil {
		return nil, classifyStoreErr(err, "upload")
	}

	anchored, err := s.ledger.Anchor(ctx, anchorDigest, collectorAddress)
	if err != nil {
		// The blob stays in the store unreferenced; see package notes.
		return nil, classifyLedgerErr(err, "anchor")
	}

	s.logger.Info("evidence anchored",
		zap.Int64("evidence_id", anchored.EvidenceID),
		zap.String("tx", anchored.TxHash),
		zap.String("cid", cid),
		zap.String("collector_address", collectorAddress))

	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	record := models.Evidence{
		EvidenceID:       anchored.EvidenceID,
		FileName:         req.FileName,
		FileType:         req.FileType,
		FileSize:         int64(len(req.Data)),
		ContentID:        cid,
		LedgerReference:  anchored.TxHash,
		FileDigest:       fileDigest,
		CollectorID:      req.Collector.ID,
		CollectorName:    req.Collector.Name,
		CollectorAddress: collectorAddress,
		CapturedAt:       capturedAt,
		GPSLatitude:      req.Latitude,
		GPSLongitude:     req.Longitude,
		Description:      req.Description,
		Status:           models.StatusSealed,
	}

	return s.reconcileAndPersist(&record)
}

// resolveCollectorAddress applies the fallback policy: use the collector's
// own wallet address when set, otherwise the configured default. The
// substitution changes who appears as the collector on-chain, so it is
// always logged at Warn.
func (s *Service) resolveCollectorAddress(collector *models.User) (string, error) {
	if collector == nil {
		return "", E(KindValidation, "no collector identity", nil)
	}
	if collector.WalletAddress != "" && collector.WalletAddress != "0x0000000000000000000000000000000000000000" {
		return collector.WalletAddress, nil
	}
	if s.defaultCollector == "" {
		return "", E(KindValidation,
			"collector has no wallet address and no default collector address is configured", nil)
	}
	s.logger.Warn("collector has no wallet address; anchoring under the default collector address",
		zap.String("username", collector.Username),
		zap.String("default_address", s.defaultCollector))
	return s.defaultCollector, nil
}

// reconcileAndPersist applies the duplicate-identifier decision table:
//
//	no record for the evidence id            -> create it
//	record exists, same ledger reference     -> retried anchor, return existing
//	record exists, different ledger reference -> conflict, leave it untouched
//
// A concurrent duplicate that slips past the initial read is caught by the
// unique index on evidence_id; on that constraint error the table is re-run
// against the record the winner wrote.
func (s *Service) reconcileAndPersist(record *models.Evidence) (*models.Evidence, error) {
	var existing models.Evidence
	err := s.db.Where("evidence_id = ?", record.EvidenceID).First(&existing).Error
	switch {
	case err == nil:
		return s.reconcileExisting(record, &existing)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to create
	default:
		return nil, E(KindInternal, "reading evidence record", err)
	}

	if err := s.db.Create(record).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Lost the race; reconcile against whatever landed.
			if err2 := s.db.Where("evidence_id = ?", record.EvidenceID).First(&existing).Error; err2 != nil {
				return nil, E(KindInternal, "re-reading evidence record after duplicate", err2)
			}
			return s.reconcileExisting(record, &existing)
		}
		return nil, E(KindInternal, "persisting evidence record", err)
	}
	return record, nil
}

func (s *Service) reconcileExisting(incoming, existing *models.Evidence) (*models.Evidence, error) {
	if existing.LedgerReference == incoming.LedgerReference {
		s.logger.Info("evidence already recorded for this anchor; returning existing record",
			zap.Int64("evidence_id", existing.EvidenceID),
			zap.String("tx", existing.LedgerReference))
		return existing, nil
	}
	s.logger.Error("evidence identifier conflict: two anchors under one id",
		zap.Int64("evidence_id", existing.EvidenceID),
		zap.String("existing_tx", existing.LedgerReference),
		zap.String("new_tx", incoming.LedgerReference))
	return nil, E(KindConflict, "duplicate evidence id with a different ledger reference", nil)
}
