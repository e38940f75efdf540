package domain

import "time"

// MirrorRepository holds the live ticket map. It is process-local: the mirror
// loop rebuilds it from position comments after a restart.
type MirrorRepository interface {
	SavePair(pair *MirrorPair) error
	GetActivePairs() []*MirrorPair
	GetPairByOriginal(originalTicket int64) (*MirrorPair, bool)
	UpdatePair(pair *MirrorPair) error
	// HasMirrored reports whether the original ticket ever had a reverse,
	// live or closed. Used to enforce one reverse per original.
	HasMirrored(originalTicket int64) bool
	// MarkMirrored records the fact without a pair, for originals whose
	// reverse was seen but never linked into an active pair.
	MarkMirrored(originalTicket int64)
	GetHistory(fromTime time.Time) []*MirrorPair
}

// MirrorHistorian persists closed-pair history outside the process so the
// audit trail survives restarts. The live ticket map never depends on it.
type MirrorHistorian interface {
	RecordOpen(pair *MirrorPair) error
	RecordClose(pair *MirrorPair) error
	History(fromTime time.Time) ([]*MirrorPair, error)
}
