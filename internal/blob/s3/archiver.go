package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// Uploader stores a complete object. *Writer satisfies it.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

// Journal is the local opportunity journal being archived.
type Journal interface {
	Snapshot() ([]byte, error)
	Path() string
}

// shutdownTimeout bounds the final archive run after ctx is cancelled.
const shutdownTimeout = 15 * time.Second

// tradeArchiveLimit caps how many recent trades one archive run exports.
const tradeArchiveLimit = 10_000

// Archiver periodically copies the opportunity journal and the trade history
// to object storage. Nothing is deleted locally.
type Archiver struct {
	up       Uploader
	journal  Journal
	trades   domain.TradeStore // optional
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiver creates an Archiver. trades may be nil.
func NewArchiver(up Uploader, journal Journal, trades domain.TradeStore, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		up:       up,
		journal:  journal,
		trades:   trades,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// Run archives every interval until ctx is cancelled, then once more so the
// latest journal survives shutdown.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := a.Archive(finalCtx); err != nil {
				a.logger.Error("final archive failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if err := a.Archive(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Archive uploads the current journal and, when a trade store is attached,
// the recent trades as JSON lines.
func (a *Archiver) Archive(ctx context.Context) error {
	ts := a.now().UTC()

	data, err := a.journal.Snapshot()
	if err != nil {
		return fmt.Errorf("s3blob: snapshot journal: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(a.journal.Path()), ".json")
	key := ObjectKey("opportunities", base, "json", ts)
	if err := a.up.Upload(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive journal: %w", err)
	}
	a.logger.InfoContext(ctx, "journal archived", slog.String("key", key), slog.Int("bytes", len(data)))

	if a.trades == nil {
		return nil
	}
	trades, err := a.trades.ListTrades(ctx, tradeArchiveLimit)
	if err != nil {
		return fmt.Errorf("s3blob: list trades: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}
	lines, err := encodeJSONL(trades)
	if err != nil {
		return fmt.Errorf("s3blob: encode trades: %w", err)
	}
	key = ObjectKey("trades", "trades", "jsonl", ts)
	if err := a.up.Upload(ctx, key, lines, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive trades: %w", err)
	}
	a.logger.InfoContext(ctx, "trades archived", slog.String("key", key), slog.Int("count", len(trades)))
	return nil
}

// ObjectKey builds "<prefix>/YYYY/MM/DD/<name>-<unix>.<ext>".
func ObjectKey(prefix, name, ext string, ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s-%d.%s",
		prefix, ts.Year(), ts.Month(), ts.Day(), name, ts.Unix(), ext)
}

func encodeJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
