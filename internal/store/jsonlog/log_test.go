package jsonlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func opp(i int) domain.Opportunity {
	return domain.Opportunity{
		ID:             fmt.Sprintf("opp-%d", i),
		Symbol:         "TSLAx",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, i%60, 0, time.UTC),
		VenuePrice:     245,
		ReferencePrice: 247,
		Spread:         2,
		SpreadPercent:  0.8163,
		Direction:      domain.DirectionBuyCheapVenue,
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "opportunities.json", FileName(1))
	assert.Equal(t, "opportunities-multi.json", FileName(3))
}

func TestAppendPersistsNewestLast(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, FileName(1), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Append(ctx, opp(1)))
	require.NoError(t, l.Append(ctx, opp(2)))

	raw, err := os.ReadFile(filepath.Join(dir, "opportunities.json"))
	require.NoError(t, err)
	var onDisk []domain.Opportunity
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Len(t, onDisk, 2)
	assert.Equal(t, "opp-1", onDisk[0].ID)
	assert.Equal(t, "opp-2", onDisk[1].ID)

	recent, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "opp-2", recent[0].ID)

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBoundedToMaxEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, FileName(1), testLogger())
	require.NoError(t, err)
	l.max = 5

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, l.Append(ctx, opp(i)))
	}
	assert.Equal(t, 5, l.Len())

	all, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "opp-7", all[0].ID)
	assert.Equal(t, "opp-3", all[4].ID)
}

func TestReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := Open(dir, FileName(2), testLogger())
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, opp(1)))

	again, err := Open(dir, FileName(2), testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
	assert.Equal(t, filepath.Join(dir, "opportunities-multi.json"), again.Path())
}

func TestCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "opportunities.json"), []byte("{not json"), 0o644))

	l, err := Open(dir, FileName(1), testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	require.NoError(t, l.Append(context.Background(), opp(1)))
	assert.Equal(t, 1, l.Len())
}

func TestSnapshotOfEmptyLogIsArray(t *testing.T) {
	l, err := Open(t.TempDir(), FileName(1), testLogger())
	require.NoError(t, err)

	data, err := l.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}
