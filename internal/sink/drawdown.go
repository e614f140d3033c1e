package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trade-sonic/quote-stream/internal/feed"
)

var hundred = decimal.NewFromInt(100)

// Alert is raised when a symbol's bid falls too far below its high.
type Alert struct {
	Symbol   string
	High     decimal.Decimal
	Price    decimal.Decimal
	Drawdown decimal.Decimal // percent
	At       time.Time
}

// Drawdown watches quote bids and raises an Alert when a symbol's bid falls
// at least maxDrawdownPercent below the highest bid seen for it. Tracking
// restarts from the alerting price.
type Drawdown struct {
	mu sync.Mutex

	maxDrawdownPercent decimal.Decimal
	highs              map[string]decimal.Decimal

	logger  *slog.Logger
	onAlert func(Alert)
}

// NewDrawdown creates a drawdown watcher. onAlert may be nil, alerts are
// always logged.
func NewDrawdown(maxDrawdownPercent float64, logger *slog.Logger, onAlert func(Alert)) (*Drawdown, error) {
	if maxDrawdownPercent <= 0 || maxDrawdownPercent >= 100 {
		return nil, fmt.Errorf("max drawdown percent must be between 0 and 100, got %v", maxDrawdownPercent)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Drawdown{
		maxDrawdownPercent: decimal.NewFromFloat(maxDrawdownPercent),
		highs:              make(map[string]decimal.Decimal),
		logger:             logger,
		onAlert:            onAlert,
	}, nil
}

// Name implements Handler
func (d *Drawdown) Name() string {
	return "drawdown"
}

// Handle implements Handler. Events other than quotes are ignored.
func (d *Drawdown) Handle(ctx context.Context, r feed.Response) error {
	if r.EventType != feed.EventQuote {
		return nil
	}
	q, err := r.Quote()
	if err != nil {
		return err
	}
	if !q.BidPrice.IsPositive() {
		return nil
	}

	alert, ok := d.observe(q)
	if !ok {
		return nil
	}
	d.logger.Warn("drawdown alert",
		"symbol", alert.Symbol,
		"high", alert.High.String(),
		"price", alert.Price.String(),
		"drawdown_percent", alert.Drawdown.StringFixed(2))
	if d.onAlert != nil {
		d.onAlert(alert)
	}
	return nil
}

func (d *Drawdown) observe(q feed.Quote) (Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	high, exists := d.highs[q.Symbol]
	if !exists || q.BidPrice.GreaterThan(high) {
		d.highs[q.Symbol] = q.BidPrice
		return Alert{}, false
	}

	drawdown := high.Sub(q.BidPrice).Div(high).Mul(hundred)
	if drawdown.LessThan(d.maxDrawdownPercent) {
		return Alert{}, false
	}

	d.highs[q.Symbol] = q.BidPrice
	return Alert{
		Symbol:   q.Symbol,
		High:     high,
		Price:    q.BidPrice,
		Drawdown: drawdown,
		At:       q.Time(),
	}, true
}

// Reset forgets the highs of every symbol.
func (d *Drawdown) Reset() {
	d.mu.Lock()
	d.highs = make(map[string]decimal.Decimal)
	d.mu.Unlock()
}
