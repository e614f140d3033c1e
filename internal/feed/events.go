package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Data event types.
const (
	EventQuote           = "Q"
	EventAggregateSecond = "A"
	EventAggregateMinute = "AM"
)

// Quote represents a top of book quote event
type Quote struct {
	Symbol      string          `json:"sym"`
	BidExchange int             `json:"bx"`
	BidPrice    decimal.Decimal `json:"bp"`
	BidSize     int64           `json:"bs"`
	AskExchange int             `json:"ax"`
	AskPrice    decimal.Decimal `json:"ap"`
	AskSize     int64           `json:"as"`
	Condition   int             `json:"c"`
	Timestamp   int64           `json:"t"` // Unix milliseconds
}

// Time returns the quote timestamp.
func (q Quote) Time() time.Time {
	return time.UnixMilli(q.Timestamp)
}

// Spread returns ask minus bid.
func (q Quote) Spread() decimal.Decimal {
	return q.AskPrice.Sub(q.BidPrice)
}

// Aggregate represents a per-second or per-minute bar event
type Aggregate struct {
	Symbol            string          `json:"sym"`
	Volume            int64           `json:"v"`
	AccumulatedVolume int64           `json:"av"`
	OfficialOpen      decimal.Decimal `json:"op"`
	VWAP              decimal.Decimal `json:"vw"`
	Open              decimal.Decimal `json:"o"`
	Close             decimal.Decimal `json:"c"`
	High              decimal.Decimal `json:"h"`
	Low               decimal.Decimal `json:"l"`
	AverageTradeSize  int64           `json:"z"`
	Start             int64           `json:"s"` // Unix milliseconds
	End               int64           `json:"e"` // Unix milliseconds
}

// StartTime returns the start of the aggregate window.
func (a Aggregate) StartTime() time.Time {
	return time.UnixMilli(a.Start)
}

// Quote decodes a quote event.
func (r Response) Quote() (Quote, error) {
	var q Quote
	err := r.decodeAs([]string{EventQuote}, &q)
	return q, err
}

// Aggregate decodes a second or minute aggregate event.
func (r Response) Aggregate() (Aggregate, error) {
	var a Aggregate
	err := r.decodeAs([]string{EventAggregateSecond, EventAggregateMinute}, &a)
	return a, err
}
