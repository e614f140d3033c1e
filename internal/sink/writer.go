// Package sink provides destinations for decoded feed events.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/trade-sonic/quote-stream/internal/feed"
)

// Format selects how Writer renders events.
type Format string

const (
	FormatRaw    Format = "raw"    // event JSON, one object per line
	FormatPretty Format = "pretty" // human readable line for quotes and aggregates
)

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatRaw, FormatPretty:
		return Format(s), nil
	case "":
		return FormatRaw, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Writer writes every event to an io.Writer, one line per event.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	format Format
	loc    *time.Location
}

// NewWriter creates a writer sink. Timestamps in pretty output use the
// local time zone.
func NewWriter(out io.Writer, format Format) *Writer {
	return &Writer{out: out, format: format, loc: time.Local}
}

// Deliver implements session.Sink
func (w *Writer) Deliver(ctx context.Context, r feed.Response) error {
	line, err := w.render(r)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, line+"\n"); err != nil {
		return fmt.Errorf("error writing event: %w", err)
	}
	return nil
}

func (w *Writer) render(r feed.Response) (string, error) {
	if w.format == FormatPretty {
		if r.IsStatus() {
			return fmt.Sprintf("[status] %s: %s", r.Status, r.Message), nil
		}
		switch r.EventType {
		case feed.EventQuote:
			if q, err := r.Quote(); err == nil {
				return fmt.Sprintf("[%s] Q %s: bid $%s x %d, ask $%s x %d, spread $%s",
					q.Time().In(w.loc).Format("15:04:05"),
					q.Symbol,
					q.BidPrice.StringFixed(4), q.BidSize,
					q.AskPrice.StringFixed(4), q.AskSize,
					q.Spread().StringFixed(4)), nil
			}
		case feed.EventAggregateSecond, feed.EventAggregateMinute:
			if a, err := r.Aggregate(); err == nil {
				return fmt.Sprintf("[%s] %s %s: O $%s H $%s L $%s C $%s, Volume: %d",
					a.StartTime().In(w.loc).Format("15:04:05"),
					r.EventType,
					a.Symbol,
					a.Open.StringFixed(2), a.High.StringFixed(2), a.Low.StringFixed(2), a.Close.StringFixed(2),
					a.Volume), nil
			}
		}
	}
	return rawJSON(r)
}

func rawJSON(r feed.Response) (string, error) {
	if len(r.Raw) > 0 {
		return string(r.Raw), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s event: %w", r.EventType, err)
	}
	return string(data), nil
}
