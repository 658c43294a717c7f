// Package broker defines the broker adapter contract: domain types,
// the capability interface, a typed error taxonomy, a circuit-breaker
// wrapper, and an in-memory paper adapter.
package broker

import (
	"time"

	"github.com/calebmo/candlebot/internal/market"
	"github.com/calebmo/candlebot/internal/timeframe"
)

// Side is the direction of a position or order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideFlat  Side = "flat"
)

// Opposite returns the reversed direction; flat stays flat.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	}
	return SideFlat
}

// AssetClass buckets symbols for universe caps.
type AssetClass string

const (
	ClassForex   AssetClass = "forex"
	ClassMetals  AssetClass = "metals"
	ClassIndices AssetClass = "indices"
	ClassStocks  AssetClass = "stocks"
	ClassOther   AssetClass = "other"
)

// TradeMode is the account trading mode reported by the broker.
type TradeMode string

const (
	ModeDemo    TradeMode = "DEMO"
	ModeContest TradeMode = "CONTEST"
	ModeReal    TradeMode = "REAL"
	ModeUnknown TradeMode = "UNKNOWN"
)

// Deal entry direction.
const (
	DealEntryIn  = "IN"
	DealEntryOut = "OUT"
)

// SymbolMeta is the static per-symbol metadata used for filtering and
// position sizing.
type SymbolMeta struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Class        AssetClass `json:"class"`
	Digits       int        `json:"digits"`
	Point        float64    `json:"point"`
	StopsLevel   int        `json:"stops_level"`
	VolumeMin    float64    `json:"volume_min"`
	VolumeMax    float64    `json:"volume_max"`
	VolumeStep   float64    `json:"volume_step"`
	TickValue    float64    `json:"tick_value"`
	TickSize     float64    `json:"tick_size"`
	ContractSize float64    `json:"contract_size"`
	TradeAllowed bool       `json:"trade_allowed"`
}

// Quote is a point-in-time bid/ask snapshot.
type Quote struct {
	Symbol       string    `json:"symbol"`
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	Time         time.Time `json:"time"`
	SpreadPoints float64   `json:"spread_points"`
}

// Position is a broker-side open position.
type Position struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Volume    float64   `json:"volume"`
	PriceOpen float64   `json:"price_open"`
	SL        float64   `json:"sl"`
	TP        float64   `json:"tp"`
	Profit    float64   `json:"profit"`
	Time      time.Time `json:"time"`
	Magic     int64     `json:"magic"`
	Comment   string    `json:"comment"`
}

// Deal is a broker-side fill record, immutable after emission.
type Deal struct {
	Ticket      int64     `json:"ticket"`
	PositionID  int64     `json:"position_id"`
	OrderTicket int64     `json:"order_ticket"`
	Time        time.Time `json:"time"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Entry       string    `json:"entry"`
	Volume      float64   `json:"volume"`
	Price       float64   `json:"price"`
	Profit      float64   `json:"profit"`
	Commission  float64   `json:"commission"`
	Swap        float64   `json:"swap"`
	Magic       int64     `json:"magic"`
	Comment     string    `json:"comment"`
}

// AccountInfo is the broker account state snapshot.
type AccountInfo struct {
	Login     int64     `json:"login"`
	Name      string    `json:"name"`
	Server    string    `json:"server"`
	Currency  string    `json:"currency"`
	Balance   float64   `json:"balance"`
	Equity    float64   `json:"equity"`
	Margin    float64   `json:"margin"`
	TradeMode TradeMode `json:"trade_mode"`
}

// OrderRequest is a market order instruction. A zero SL/TP means none;
// a non-zero PositionID closes that position instead of opening.
type OrderRequest struct {
	Symbol          string  `json:"symbol"`
	Side            Side    `json:"side"`
	Volume          float64 `json:"volume"`
	SL              float64 `json:"sl,omitempty"`
	TP              float64 `json:"tp,omitempty"`
	DeviationPoints int     `json:"deviation_points"`
	Magic           int64   `json:"magic"`
	Comment         string  `json:"comment"`
	PositionID      int64   `json:"position_id,omitempty"`
}

// OrderResult is the adapter-neutral order outcome.
type OrderResult struct {
	Success     bool    `json:"success"`
	Retcode     int     `json:"retcode"`
	OrderTicket int64   `json:"order_ticket"`
	DealTicket  int64   `json:"deal_ticket"`
	PositionID  int64   `json:"position_id"`
	Price       float64 `json:"price"`
	Comment     string  `json:"comment"`
}

// CandlesRequest parameters are plain args on the interface; this alias
// keeps timeframe in the package API surface.
type Timeframe = timeframe.Code

// Candle re-exports the market bar type for adapter implementors.
type Candle = market.Candle
