package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/registry"
	"github.com/alanyoungcy/marketcore/internal/resolution"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
	"github.com/alanyoungcy/marketcore/internal/service"
	"github.com/alanyoungcy/marketcore/internal/settlement"
	"github.com/alanyoungcy/marketcore/internal/store/memory"
)

const (
	creatorID = "0x00000000000000000000000000000000000000c1"
	traderID  = "0x00000000000000000000000000000000000000d1"
	adminID   = "0x00000000000000000000000000000000000000a1"
)

type archive struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (a *archive) Store(_ context.Context, hash string, canonical []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[hash] = canonical
	return nil
}

func (a *archive) Load(_ context.Context, hash string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.data[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

// stream keeps published events in memory with sequential ids.
type stream struct {
	mu      sync.Mutex
	entries [][]byte
}

func (s *stream) Publish(context.Context, string, []byte) error { return nil }

func (s *stream) StreamAppend(_ context.Context, _ string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, payload)
	return nil
}

func (s *stream) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, _, _ := strings.Cut(lastID, "-")
	n, err := strconv.Atoi(seq)
	if err != nil {
		return nil, err
	}
	var out []domain.StreamMessage
	for i := n; i < len(s.entries) && len(out) < count; i++ {
		out = append(out, domain.StreamMessage{ID: strconv.Itoa(i+1) + "-0", Payload: s.entries[i]})
	}
	return out, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

type testEnv struct {
	handler http.Handler
	tokens  *crypto.TokenIssuer
	db      *memory.DB
}

func newEnv(t *testing.T, limiter domain.RateLimiter, health map[string]handler.Pinger) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New()
	dir := registry.New([]string{adminID}, nil)
	arch := &archive{data: map[string][]byte{}}
	bus := &stream{}

	tokens, err := crypto.NewTokenIssuer("server-test-secret-0123456789")
	if err != nil {
		t.Fatal(err)
	}

	resolutions := service.NewResolutionService(service.ResolutionDeps{
		Markets:   db.Markets(),
		Options:   db.Options(),
		Records:   db.Resolutions(),
		Audit:     db.Audit(),
		Directory: dir,
		Archive:   arch,
		Bus:       bus,
	}, service.ResolutionConfig{
		DisputePeriod: 72 * time.Hour,
		VerifyTimeout: time.Second,
		Quorum:        resolution.DefaultPolicy(),
		ChainID:       137,
	}, log)
	disputes := service.NewDisputeService(db.Options(), db.Disputes(), db.Audit(), nil, nil, log)
	settle := service.NewSettlementService(service.SettlementDeps{
		Markets:   db.Markets(),
		Options:   db.Options(),
		Disputes:  db.Disputes(),
		Positions: db.Positions(),
		Liquidity: db.Liquidity(),
		Audit:     db.Audit(),
	}, settlement.NewCalculator(dispute.Policy{}, decimal.NewFromInt(1)), log)
	prices := service.NewPriceService(db.Markets(), db.Options(), nil, nil, 100, log)
	markets := service.NewMarketService(db.Markets(), db.Disputes(), dispute.Policy{}, log)

	srv := NewServer(Config{Port: 0, RateLimit: 10, RateWindow: time.Minute}, Handlers{
		Health:      handler.NewHealthHandler(health, log),
		Markets:     handler.NewMarketHandler(markets, prices, log),
		Resolutions: handler.NewResolutionHandler(resolutions, log),
		Disputes:    handler.NewDisputeHandler(disputes, log),
		Claims:      handler.NewClaimHandler(settle, log),
		Evidence:    handler.NewEvidenceHandler(arch, log),
		Audit:       handler.NewAuditHandler(db.Audit(), log),
		Events:      handler.NewEventsHandler(bus, log),
	}, Auth{Tokens: tokens, Principals: dir, Limiter: limiter}, log)

	env := &testEnv{handler: srv.Handler(), tokens: tokens, db: db}
	env.seed(t)
	return env
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	d := decimal.RequireFromString
	if err := e.db.Markets().Upsert(ctx, domain.Market{
		ID:                 "mkt-1",
		Question:           "Will it rain?",
		CreatorID:          creatorID,
		LiquidityParameter: d("100000"),
		ResolutionMode:     domain.ResolutionModeAuthority,
		TotalVolume:        d("1000"),
		Pool: domain.LiquidityPool{
			SharedLiquidity:   d("900"),
			AccumulatedFees:   d("100"),
			TotalSharedShares: d("400"),
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.db.Options().Upsert(ctx, domain.MarketOption{
		ID: "opt-1", MarketID: "mkt-1", Label: "Yes", YesQuantity: d("1000"), NoQuantity: d("1000"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.db.Positions().Upsert(ctx, domain.Position{
		ID: "pos-1", Owner: traderID, MarketID: "mkt-1", OptionID: "opt-1", Side: domain.SideYes, Shares: d("50"),
	}); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	tok, err := e.tokens.Issue(subject, roles, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
	if code != "" {
		if got := decodeBody(t, rec)["code"]; got != code {
			t.Fatalf("code = %v, want %s", got, code)
		}
	}
}

func TestHealth(t *testing.T) {
	ok := newEnv(t, nil, map[string]handler.Pinger{"postgres": pinger{}})
	expect(t, ok.do(t, "GET", "/api/health", "", ""), http.StatusOK, "")

	down := newEnv(t, nil, map[string]handler.Pinger{"redis": pinger{err: errors.New("dial tcp: refused")}})
	rec := down.do(t, "GET", "/api/health", "", "")
	expect(t, rec, http.StatusServiceUnavailable, "")
	if checks := decodeBody(t, rec)["checks"].(map[string]any); checks["redis"] != "down" {
		t.Fatalf("checks = %v", checks)
	}
}

func TestMarketAndPrice(t *testing.T) {
	env := newEnv(t, nil, nil)

	rec := env.do(t, "GET", "/api/markets/mkt-1", "", "")
	expect(t, rec, http.StatusOK, "")
	if body := decodeBody(t, rec); body["resolutionMode"] != "AUTHORITY" {
		t.Fatalf("market = %v", body)
	}

	expect(t, env.do(t, "GET", "/api/markets/nope", "", ""), http.StatusNotFound, "not_found")

	rec = env.do(t, "GET", "/api/options/opt-1/price", "", "")
	expect(t, rec, http.StatusOK, "")
	if yes := decodeBody(t, rec)["yes"]; yes != 0.5 {
		t.Fatalf("yes = %v, want 0.5", yes)
	}

	expect(t, env.do(t, "GET", "/api/options/opt-1/cost?side=maybe&shares=1", "", ""), http.StatusBadRequest, "invalid_request")
	expect(t, env.do(t, "GET", "/api/options/opt-1/cost?side=yes&shares=10", "", ""), http.StatusOK, "")
}

func TestFillRequiresSystemRole(t *testing.T) {
	env := newEnv(t, nil, nil)
	fill := `{"optionId":"opt-1","side":1,"shares":"10","notional":"5"}`

	expect(t, env.do(t, "POST", "/api/fills", "", fill), http.StatusUnauthorized, "unauthenticated")
	expect(t, env.do(t, "POST", "/api/fills", env.token(t, traderID), fill), http.StatusForbidden, "unauthorized")

	sys := env.token(t, "system:pricer", "system")
	expect(t, env.do(t, "POST", "/api/fills", sys, fill), http.StatusOK, "")
	expect(t, env.do(t, "POST", "/api/fills", sys, `{"optionId":"opt-1","bogus":1}`), http.StatusBadRequest, "invalid_request")
}

func TestResolutionFlow(t *testing.T) {
	env := newEnv(t, nil, nil)
	creator := env.token(t, creatorID)
	trader := env.token(t, traderID)
	body := `{"marketId":"mkt-1","optionId":"opt-1","outcome":"yes","winningSide":1,
		"evidence":{"source":"manual","data":{"note":"official announcement"}}}`

	expect(t, env.do(t, "POST", "/api/resolutions", trader, body), http.StatusForbidden, "unauthorized")

	rec := env.do(t, "POST", "/api/resolutions", creator, body)
	expect(t, rec, http.StatusCreated, "")
	res := decodeBody(t, rec)
	hash, _ := res["evidenceHash"].(string)
	if len(hash) != 64 || res["disputeDeadline"] == nil || res["marketResolved"] != true {
		t.Fatalf("resolution = %v", res)
	}

	expect(t, env.do(t, "POST", "/api/resolutions", creator, body), http.StatusConflict, "already_resolved")

	rec = env.do(t, "GET", "/api/markets/mkt-1/resolutions?option_id=opt-1", "", "")
	expect(t, rec, http.StatusOK, "")
	if rs := decodeBody(t, rec)["resolutions"].([]any); len(rs) != 1 || rs[0].(map[string]any)["evidenceHash"] != hash {
		t.Fatalf("resolutions = %v", rs)
	}
	expect(t, env.do(t, "GET", "/api/markets/nope/resolutions", "", ""), http.StatusNotFound, "not_found")

	rec = env.do(t, "GET", "/api/evidence/"+hash, "", "")
	expect(t, rec, http.StatusOK, "")
	if !strings.Contains(rec.Body.String(), "official announcement") {
		t.Fatalf("evidence = %s", rec.Body.String())
	}
	expect(t, env.do(t, "GET", "/api/evidence/xyz", "", ""), http.StatusBadRequest, "invalid_request")
	expect(t, env.do(t, "GET", "/api/evidence/"+strings.Repeat("0", 64), "", ""), http.StatusNotFound, "not_found")

	// The window is open: claims wait, disputes are accepted once per raiser.
	expect(t, env.do(t, "POST", "/api/claims/positions/pos-1", trader, ""), http.StatusConflict, "not_finalized")
	dispute := `{"marketId":"mkt-1","optionId":"opt-1","reason":"the announcement was retracted"}`
	expect(t, env.do(t, "POST", "/api/disputes", trader, dispute), http.StatusCreated, "")
	expect(t, env.do(t, "POST", "/api/disputes", trader, dispute), http.StatusConflict, "already_exists")

	rec = env.do(t, "GET", "/api/disputes?option_id=opt-1", "", "")
	expect(t, rec, http.StatusOK, "")
	if ds := decodeBody(t, rec)["disputes"].([]any); len(ds) != 1 {
		t.Fatalf("disputes = %v", ds)
	}
	expect(t, env.do(t, "GET", "/api/disputes", "", ""), http.StatusBadRequest, "invalid_request")
}

func TestInvalidEvidenceIsUnprocessable(t *testing.T) {
	env := newEnv(t, nil, nil)
	body := `{"marketId":"mkt-1","optionId":"opt-1","winningSide":1,"evidence":{"source":"carrier-pigeon"}}`
	expect(t, env.do(t, "POST", "/api/resolutions", env.token(t, creatorID), body),
		http.StatusUnprocessableEntity, "invalid_evidence")
}

func TestAuthentication(t *testing.T) {
	env := newEnv(t, nil, nil)

	expect(t, env.do(t, "GET", "/api/markets/mkt-1", "not-a-token", ""), http.StatusUnauthorized, "unauthenticated")

	expired, err := env.tokens.IssueAt(traderID, nil, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	expect(t, env.do(t, "GET", "/api/markets/mkt-1", expired, ""), http.StatusUnauthorized, "unauthenticated")

	// Roles claimed in a token do not grant admin.
	expect(t, env.do(t, "GET", "/api/audit", env.token(t, traderID, "admin"), ""), http.StatusForbidden, "unauthorized")
	expect(t, env.do(t, "GET", "/api/audit", env.token(t, adminID), ""), http.StatusOK, "")
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, denyAll{}, nil)
	expect(t, env.do(t, "GET", "/api/markets/mkt-1", "", ""), http.StatusTooManyRequests, "rate_limited")
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/resolutions", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}
}

func TestEventFeed(t *testing.T) {
	env := newEnv(t, nil, nil)
	body := `{"marketId":"mkt-1","optionId":"opt-1","winningSide":2,"evidence":{"source":"manual","data":"cancelled"}}`
	expect(t, env.do(t, "POST", "/api/resolutions", env.token(t, creatorID), body), http.StatusCreated, "")

	rec := env.do(t, "GET", "/api/events", "", "")
	expect(t, rec, http.StatusOK, "")
	page := decodeBody(t, rec)
	events := page["events"].([]any)
	if len(events) != 2 || page["next"] != "2-0" {
		t.Fatalf("page = %v", page)
	}
	first := events[0].(map[string]any)["event"].(map[string]any)
	if first["event"] != "option_resolved" || first["option_id"] != "opt-1" {
		t.Fatalf("first event = %v", first)
	}

	rec = env.do(t, "GET", "/api/events?after=2-0", "", "")
	expect(t, rec, http.StatusOK, "")
	if page := decodeBody(t, rec); len(page["events"].([]any)) != 0 || page["next"] != "2-0" {
		t.Fatalf("page after the end = %v", page)
	}
	expect(t, env.do(t, "GET", "/api/events?limit=-1", "", ""), http.StatusBadRequest, "invalid_request")
}
