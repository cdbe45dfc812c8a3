package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"whalehub/app"
	"whalehub/core/epoch"
	"whalehub/core/events"
	"whalehub/core/numeric"
	"whalehub/core/state"
	"whalehub/core/types"
	"whalehub/crypto"
	"whalehub/native/bonding"
	"whalehub/native/incentive"
	"whalehub/services/indexer"
	"whalehub/storage"
)

const (
	testSecret = "test-secret"
	testIssuer = "whalehub-test"
)

var genesisTime = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	app   *app.App
	srv   *Server
	http  *httptest.Server
	now   time.Time
	owner string
	alice string
}

func account(seed string) string {
	return crypto.AccountFromSeed(crypto.DefaultPrefix, seed).String()
}

func newHarness(t *testing.T, withGenesis bool) *harness {
	t.Helper()
	h := &harness{t: t, now: genesisTime.Add(time.Hour), owner: account("owner"), alice: account("alice")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.app = app.New(state.NewDBStore(storage.NewMemDB()),
		app.WithClock(func() time.Time { return h.now }),
		app.WithLogger(logger),
	)
	h.srv = NewServer(h.app, Config{
		Auth:               AuthConfig{HMACSecret: testSecret, Issuer: testIssuer},
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}, logger)
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.http.Close)
	if withGenesis {
		_, err := h.app.InitChain(context.Background(), app.Genesis{
			GenesisTime: genesisTime,
			Owner:       h.owner,
			Epoch:       epoch.Config{Duration: 24 * time.Hour},
			Bonding: bonding.InstantiateMsg{
				UnbondingPeriod: 1,
				GrowthRate:      numeric.MustParseDecimal("0.1"),
				BondingAssets:   []string{"ampWHALE"},
				GracePeriod:     2,
			},
			Incentive: incentive.InstantiateMsg{
				CreateIncentiveFee:      types.NewCoin("uwhale", 1_000),
				MaxConcurrentIncentives: 5,
				MaxIncentiveEpochBuffer: 14,
				MinUnlockingDuration:    incentive.MinLockSeconds,
				MaxUnlockingDuration:    incentive.MaxLockSeconds,
				EmergencyUnlockPenalty:  numeric.MustParseDecimal("0.1"),
				ClaimGracePeriod:        14,
			},
			Balances: []app.Balance{
				{Address: h.alice, Coins: types.Coins{types.NewCoin("ampWHALE", 5_000)}},
			},
		})
		require.NoError(t, err)
	}
	return h
}

func (h *harness) get(path string, out interface{}) int {
	h.t.Helper()
	resp, err := http.Get(h.http.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) postTx(token string, env app.Envelope, out interface{}) int {
	h.t.Helper()
	body, err := json.Marshal(env)
	require.NoError(h.t, err)
	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/v1/tx", bytes.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) token(subject string, scopes ...string) string {
	h.t.Helper()
	tok, err := IssueToken(testSecret, testIssuer, subject, time.Hour, scopes...)
	require.NoError(h.t, err)
	return tok
}

func TestHealthAndStatus(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, http.StatusOK, h.get("/healthz", nil))

	var st statusResponse
	require.Equal(t, http.StatusOK, h.get("/v1/status", &st))
	assert.False(t, st.Initialized)

	var errResp errorResponse
	assert.Equal(t, http.StatusServiceUnavailable, h.get("/v1/epochs/current", &errResp))
	assert.Contains(t, errResp.Error, "genesis")
}

func TestEpochQueries(t *testing.T) {
	h := newHarness(t, true)

	var current epoch.Epoch
	require.Equal(t, http.StatusOK, h.get("/v1/epochs/current", &current))
	assert.Equal(t, uint64(1), current.ID)

	var cfg epoch.ConfigResponse
	require.Equal(t, http.StatusOK, h.get("/v1/epochs/config", &cfg))
	assert.Equal(t, h.owner, cfg.Owner)
	assert.Equal(t, 24*time.Hour, cfg.Config.Duration)

	var hooks []string
	require.Equal(t, http.StatusOK, h.get("/v1/epochs/hooks", &hooks))
	assert.Len(t, hooks, 2)

	assert.Equal(t, http.StatusNotFound, h.get("/v1/epochs/9", nil))
	assert.Equal(t, http.StatusBadRequest, h.get("/v1/epochs/abc", nil))
}

func TestTxRequiresMatchingToken(t *testing.T) {
	h := newHarness(t, true)
	funds := types.Coins{types.NewCoin("ampWHALE", 1_000)}
	env, err := app.NewEnvelope(h.alice, funds, app.BondMsg{Asset: funds[0]})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, h.postTx("", env, nil))
	assert.Equal(t, http.StatusUnauthorized, h.postTx("garbage", env, nil))
	assert.Equal(t, http.StatusForbidden, h.postTx(h.token(account("mallory")), env, nil))

	var res app.Result
	require.Equal(t, http.StatusOK, h.postTx(h.token(h.alice), env, &res))
	assert.Equal(t, uint64(1), res.Height)
	assert.NotEmpty(t, res.AppHash)

	var bonded bonding.BondedResponse
	require.Equal(t, http.StatusOK, h.get("/v1/bonding/bonded?address="+h.alice, &bonded))
	assert.Equal(t, int64(1_000), bonded.TotalBonded.Int64())

	var balances types.Coins
	require.Equal(t, http.StatusOK, h.get("/v1/balances/"+h.alice, &balances))
	assert.Equal(t, int64(4_000), balances.AmountOf("ampWHALE").Int64())
}

func TestTxErrorsMapToStatus(t *testing.T) {
	h := newHarness(t, true)
	operator := h.token("operator", ScopeAnySender)

	unknown := app.Envelope{Type: "bonding/nope", Sender: h.alice}
	assert.Equal(t, http.StatusBadRequest, h.postTx(operator, unknown, nil))

	env, err := app.NewEnvelope(h.alice, nil, app.AddHookMsg{Hook: h.alice})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, h.postTx(operator, env, nil))

	env, err = app.NewEnvelope(h.alice, nil, app.ClaimBondingMsg{})
	require.NoError(t, err)
	var errResp errorResponse
	assert.Equal(t, http.StatusBadRequest, h.postTx(operator, env, &errResp))
	assert.NotEmpty(t, errResp.Error)
}

func TestIncentiveAndPositionQueries(t *testing.T) {
	h := newHarness(t, true)

	var list []*incentive.Incentive
	require.Equal(t, http.StatusOK, h.get("/v1/incentives?limit=5", &list))
	assert.Empty(t, list)
	assert.Equal(t, http.StatusBadRequest, h.get("/v1/incentives?limit=x", nil))
	assert.Equal(t, http.StatusNotFound, h.get("/v1/incentives/missing", nil))
	assert.Equal(t, http.StatusNotFound, h.get("/v1/positions/by-id/missing", nil))
	assert.Equal(t, http.StatusBadRequest, h.get("/v1/incentives/lp-weight?denom=uLP", nil))

	var positions []*incentive.Position
	require.Equal(t, http.StatusOK, h.get("/v1/positions/"+h.alice+"?open=true", &positions))
	assert.Empty(t, positions)

	var rewards rewardsResponse
	require.Equal(t, http.StatusOK, h.get("/v1/rewards/"+h.alice, &rewards))
	assert.True(t, rewards.Bonding.IsZero())
	assert.True(t, rewards.Incentive.IsZero())

	var bucket bonding.RewardBucket
	require.Equal(t, http.StatusOK, h.get("/v1/bonding/buckets/1", &bucket))
	assert.Equal(t, http.StatusNotFound, h.get("/v1/bonding/buckets/7", nil))
}

func TestRateLimiterThrottles(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	frozen := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return frozen }

	handler := limiter.Middleware("test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2"))
}

func TestClaimsAllows(t *testing.T) {
	assert.True(t, Claims{Subject: "a"}.Allows("a"))
	assert.False(t, Claims{Subject: "a"}.Allows("b"))
	assert.True(t, Claims{Subject: "ops", Scopes: []string{"read", ScopeAnySender}}.Allows("b"))
	assert.Equal(t, []string{"a", "b"}, extractScopes("a b"))
	assert.Equal(t, []string{"x"}, extractScopes([]interface{}{"x", 3}))
	assert.Equal(t, "tok", extractBearer("bearer tok"))
	assert.Empty(t, extractBearer("Basic tok"))
}

func TestEventHubFilters(t *testing.T) {
	hub := NewEventHub(nil)
	all, cancelAll := hub.Subscribe()
	defer cancelAll()
	onlyEpochs, cancelEpochs := hub.Subscribe(events.TypeEpochCreated)

	hub.Emit(events.EpochCreated{ID: 3})
	hub.Emit(events.RewardsFilled{})

	first := <-all
	assert.Equal(t, events.TypeEpochCreated, first.Type)
	second := <-all
	assert.Equal(t, events.TypeRewardsFilled, second.Type)

	got := <-onlyEpochs
	assert.Equal(t, events.TypeEpochCreated, got.Type)
	select {
	case ev := <-onlyEpochs:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}

	cancelEpochs()
	cancelEpochs()
	hub.Close()
	_, ok := <-all
	assert.False(t, ok)
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/v1/events/ws?types=" + events.TypeEpochCreated
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		h.srv.Events().mu.Lock()
		defer h.srv.Events().mu.Unlock()
		return len(h.srv.Events().subs) == 1
	}, time.Second, 10*time.Millisecond)

	h.now = genesisTime.Add(24*time.Hour + time.Hour)
	created, err := h.app.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev types.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, events.TypeEpochCreated, ev.Type)
	assert.Equal(t, "2", ev.Attributes["epoch_id"])
}

type stubIndex struct {
	got indexer.Filter
}

func (s *stubIndex) Events(_ context.Context, f indexer.Filter) ([]indexer.Record, error) {
	s.got = f
	return []indexer.Record{{Seq: f.AfterSeq + 1, Type: f.Type}}, nil
}

func TestIndexedEventsRoute(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, http.StatusNotFound, h.get("/v1/indexer/events", nil))

	stub := &stubIndex{}
	h.srv.SetIndex(stub)
	var records []indexer.Record
	require.Equal(t, http.StatusOK, h.get("/v1/indexer/events?type=epoch.created&key=epoch_id&value=2&after=4&limit=3", &records))
	require.Len(t, records, 1)
	assert.Equal(t, uint64(5), records[0].Seq)
	assert.Equal(t, indexer.Filter{Type: "epoch.created", Key: "epoch_id", Value: "2", AfterSeq: 4, Limit: 3}, stub.got)
	assert.Equal(t, http.StatusBadRequest, h.get("/v1/indexer/events?limit=0", nil))
}
