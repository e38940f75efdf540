package domain

import "time"

// Close reasons recorded on a mirror pair.
const (
	CloseReasonOriginalClosed = "ORIGINAL_CLOSED" // original closed, we closed the reverse
	CloseReasonReverseClosed  = "REVERSE_CLOSED"  // reverse hit its SL/TP or was closed manually
)

// MirrorPair links an original position ticket to the reverse position we
// opened against it.
type MirrorPair struct {
	OriginalTicket int64      `json:"originalTicket"`
	ReverseTicket  int64      `json:"reverseTicket"`
	Symbol         string     `json:"symbol"`
	OriginalType   int        `json:"originalType"` // buy/sell of the original
	ReverseVolume  float64    `json:"reverseVolume"`
	OpenedAt       time.Time  `json:"openedAt"`
	Status         string     `json:"status"` // "ACTIVE", "CLOSED"
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	CloseReason    string     `json:"closeReason,omitempty"`
	ProfitLoss     *float64   `json:"profitLoss,omitempty"` // reverse P/L at close, account currency
}

// MirrorSettings are the runtime-tunable knobs of the mirror loop.
type MirrorSettings struct {
	Enabled          bool    `json:"enabled"`
	Magic            int64   `json:"magic"`            // marks positions as ours
	DeviationPoints  int     `json:"deviationPoints"`  // max slippage, points
	VolumeMultiplier float64 `json:"volumeMultiplier"` // reverse volume = original * this
	CommentPrefix    string  `json:"commentPrefix"`    // original ticket is embedded after it
}

// DefaultMirrorSettings returns the settings the loop starts with.
func DefaultMirrorSettings() *MirrorSettings {
	return &MirrorSettings{
		Enabled:          true,
		Magic:            987654321,
		DeviationPoints:  20,
		VolumeMultiplier: 2.0,
		CommentPrefix:    "REV of ",
	}
}

// MirrorStats summarizes closed pairs over a period.
type MirrorStats struct {
	TotalPairs     int     `json:"totalPairs"`
	WinRate        float64 `json:"winRate"`
	TotalProfit    float64 `json:"totalProfit"`
	AvgDurationSec int     `json:"avgDurationSec"`
}
