package models

import "time"

// Evidence status values. Sealed is the initial state; a verification run
// always rewrites the status to Verified or Tampered, never anything else.
const (
	StatusSealed   = "sealed"
	StatusVerified = "verified"
	StatusTampered = "tampered"
)

// Evidence is the durable record of one sealed evidence item. EvidenceID is
// assigned by the ledger at anchor time, never generated locally. Records are
// created once by the seal workflow and afterwards only the Status field is
// rewritten by verification runs; UpdatedAt therefore doubles as the
// last-verified timestamp once the first verification has run.
type Evidence struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	EvidenceID int64  `gorm:"uniqueIndex;not null"`
	FileName   string `gorm:"size:255;not null"`
	FileType   string `gorm:"size:128;not null"`
	FileSize   int64  `gorm:"not null"`

	// ContentID is the content-addressed identifier (IPFS CID); the bytes live
	// in the content store, never in this table.
	ContentID string `gorm:"size:128;uniqueIndex;not null"`
	// LedgerReference is the anchor transaction hash.
	LedgerReference string `gorm:"size:128;not null"`
	// FileDigest is the hex SHA-256 of the original bytes, kept for audit;
	// the anchored value on the ledger is authoritative.
	FileDigest string `gorm:"size:64;not null"`

	CollectorID      uint   `gorm:"index;not null"`
	Collector        User   `gorm:"foreignKey:CollectorID;references:ID"`
	CollectorName    string `gorm:"size:255;not null"`
	CollectorAddress string `gorm:"size:64;not null"`

	CapturedAt time.Time `gorm:"not null"`

	// Both coordinates present or both absent; enforced at the API boundary.
	GPSLatitude  *float64
	GPSLongitude *float64

	Description string `gorm:"size:1024"`
	Status      string `gorm:"size:16;not null;default:sealed"`
}
