package mt5

import "math"

// Constants mirror the terminal's trade enums so request payloads match what
// the bridge forwards to order_send verbatim.
const (
	PositionTypeBuy  = 0
	PositionTypeSell = 1

	OrderTypeBuy  = 0
	OrderTypeSell = 1

	TradeActionDeal = 1
	TradeActionSLTP = 6

	OrderFillingFOK = 0
	OrderTimeGTC    = 0

	// TradeRetcodeDone is the terminal's "request completed" code.
	TradeRetcodeDone = 10009
)

// Position is an open position as reported by the terminal.
type Position struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       int     `json:"type"` // PositionTypeBuy / PositionTypeSell
	Volume     float64 `json:"volume"`
	PriceOpen  float64 `json:"price_open"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Profit     float64 `json:"profit"`
	Magic      int64   `json:"magic"`
	Comment    string  `json:"comment"`
	Time       int64   `json:"time"`
}

// SymbolInfo carries the symbol properties the bot needs for normalization.
type SymbolInfo struct {
	Name       string  `json:"name"`
	Digits     int     `json:"digits"`
	Point      float64 `json:"point"`
	Visible    bool    `json:"visible"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
}

// Tick is the latest quote for a symbol.
type Tick struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"`
}

// TradeRequest maps one-to-one onto the dict order_send expects on the
// terminal side. SL/TP are always sent: zero means "no stop" to the
// terminal, which is also how an SLTP modify clears a level.
type TradeRequest struct {
	Action      int     `json:"action"`
	Symbol      string  `json:"symbol"`
	Volume      float64 `json:"volume,omitempty"`
	Type        int     `json:"type"`
	Price       float64 `json:"price,omitempty"`
	StopLoss    float64 `json:"sl"`
	TakeProfit  float64 `json:"tp"`
	Deviation   int     `json:"deviation,omitempty"`
	Magic       int64   `json:"magic,omitempty"`
	Comment     string  `json:"comment,omitempty"`
	Position    int64   `json:"position,omitempty"`
	TypeFilling int     `json:"type_filling"`
	TypeTime    int     `json:"type_time"`
}

// OrderResult is the terminal's order_send result.
type OrderResult struct {
	Retcode int     `json:"retcode"`
	Deal    int64   `json:"deal"`
	Order   int64   `json:"order"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

// Done reports whether the terminal accepted the request.
func (r *OrderResult) Done() bool {
	return r != nil && r.Retcode == TradeRetcodeDone
}

// NormalizePrice rounds price to the number of digits the symbol trades at.
func NormalizePrice(digits int, price float64) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(price*pow) / pow
}

// MarketPrice picks the executable side of the quote for a market order:
// buys fill at ask, sells at bid.
func MarketPrice(tick *Tick, orderType int) float64 {
	if orderType == OrderTypeBuy {
		return tick.Ask
	}
	return tick.Bid
}
