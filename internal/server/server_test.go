package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/cache/memory"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/events"
	"github.com/alanyoungcy/xstockarb/internal/server/handler"
	"github.com/alanyoungcy/xstockarb/internal/server/ws"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLog []domain.Opportunity

func (s stubLog) Append(context.Context, domain.Opportunity) error { return nil }
func (s stubLog) Recent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 || limit > len(s) {
		return s, nil
	}
	return s[:limit], nil
}

type stubExec struct{ stats domain.ExecutionStats }

func (s stubExec) Stats() domain.ExecutionStats { return s.stats }

type stubMonitor struct{}

func (stubMonitor) Stats() []domain.AssetStats {
	return []domain.AssetStats{{Symbol: "TSLAx", Checks: 12, Opportunities: 2}}
}

type failingTrades struct{}

func (failingTrades) InsertTrade(context.Context, domain.TradeOutcome) error { return nil }
func (failingTrades) ListTrades(context.Context, int) ([]domain.TradeOutcome, error) {
	return nil, errors.New("db down")
}

type fixture struct {
	srv *httptest.Server
	bus *events.Bus
}

func newFixture(t *testing.T, apiKey string, withHub bool) *fixture {
	t.Helper()
	logger := quietLogger()

	prices := memory.NewPriceCache()
	require.NoError(t, prices.SetSnapshot(context.Background(), domain.PriceSnapshot{Symbol: "TSLAx", VenuePrice: 245}))
	require.NoError(t, prices.SetSnapshot(context.Background(), domain.PriceSnapshot{Symbol: "NVDAx", VenuePrice: 120}))

	opps := stubLog{
		{ID: "o-3", Symbol: "NVDAx"},
		{ID: "o-2", Symbol: "TSLAx"},
		{ID: "o-1", Symbol: "TSLAx"},
	}
	exec := stubExec{stats: domain.ExecutionStats{Attempted: 3, InFlight: true}}

	handlers := Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Checker{
			"sqlite": func(context.Context) error { return nil },
		}, logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode: "arb", Assets: []string{"TSLAx", "NVDAx"}, StartedAt: time.Now(),
		}, exec),
		Stats:   handler.NewStatsHandler(stubMonitor{}, exec, nil),
		History: handler.NewHistoryHandler(opps, prices, failingTrades{}, nil, logger),
	}

	f := &fixture{bus: events.NewBus()}
	var hub *ws.Hub
	if withHub {
		hub = ws.NewHub(f.bus, logger, ws.Config{Mode: "arb"})
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go hub.Run(ctx)
	}

	s := NewServer(Config{APIKey: apiKey}, handlers, hub, logger)
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func getJSON(t *testing.T, url string, header http.Header, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t, "secret", false)

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/health", nil, &body))
	assert.Equal(t, "ok", body["status"])

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, f.srv.URL+"/api/status", nil, nil))
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/status",
		http.Header{"Authorization": {"Bearer secret"}}, nil))
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/status",
		http.Header{"X-Api-Key": {"secret"}}, nil))
}

func TestStatusAndStats(t *testing.T) {
	f := newFixture(t, "", false)

	var status map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/status", nil, &status))
	assert.Equal(t, "arb", status["mode"])
	assert.Equal(t, true, status["tradeInFlight"])

	var stats struct {
		Assets    []domain.AssetStats    `json:"assets"`
		Execution *domain.ExecutionStats `json:"execution"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/stats", nil, &stats))
	require.Len(t, stats.Assets, 1)
	assert.Equal(t, int64(12), stats.Assets[0].Checks)
	require.NotNil(t, stats.Execution)
	assert.Equal(t, int64(3), stats.Execution.Attempted)

	var wallets map[string][]domain.WalletSummary
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/wallets", nil, &wallets))
	assert.NotNil(t, wallets["wallets"])
	assert.Empty(t, wallets["wallets"])
}

func TestOpportunitiesFilterAndLimit(t *testing.T) {
	f := newFixture(t, "", false)

	var body map[string][]domain.Opportunity
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/opportunities?symbol=TSLAx&limit=1", nil, &body))
	require.Len(t, body["opportunities"], 1)
	assert.Equal(t, "o-2", body["opportunities"][0].ID)

	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/opportunities", nil, &body))
	assert.Len(t, body["opportunities"], 3)
}

func TestPricesAndStoreErrors(t *testing.T) {
	f := newFixture(t, "", false)

	var prices map[string][]domain.PriceSnapshot
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/prices?symbols=TSLAx", nil, &prices))
	require.Len(t, prices["prices"], 1)
	assert.Equal(t, 245.0, prices["prices"][0].VenuePrice)

	var errBody map[string]string
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, f.srv.URL+"/api/trades", nil, &errBody))
	assert.Equal(t, "list trades failed", errBody["error"])

	var positions map[string][]domain.Position
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/positions", nil, &positions))
	assert.Empty(t, positions["positions"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "secret", false)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/trades", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRelaysBusEvents(t *testing.T) {
	f := newFixture(t, "secret", true)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?api_key=secret"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello domain.Envelope
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &hello))
	assert.Equal(t, "hello", hello.Type)

	pub := events.NewPublisher(f.bus, quietLogger())
	opp := domain.Opportunity{ID: "o-9", Symbol: "TSLAx"}

	// The hub subscribes asynchronously; publish until the frame arrives.
	got := make(chan domain.Envelope, 1)
	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var env domain.Envelope
			if json.Unmarshal(data, &env) == nil && env.Type == domain.EventOpportunity {
				got <- env
				return
			}
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		pub.Publish(context.Background(), domain.ChannelOpportunity, domain.EventOpportunity, opp)
		select {
		case env := <-got:
			var decoded domain.Opportunity
			require.NoError(t, json.Unmarshal(env.Payload, &decoded))
			assert.Equal(t, "o-9", decoded.ID)
			return
		case <-deadline:
			t.Fatal("no opportunity frame received")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestWebSocketRequiresKey(t *testing.T) {
	f := newFixture(t, "secret", true)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
