package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/registry"
	"github.com/alanyoungcy/marketcore/internal/resolution"
	"github.com/alanyoungcy/marketcore/internal/settlement"
	"github.com/alanyoungcy/marketcore/internal/store/memory"
)

const (
	testChainID   = 137
	disputePeriod = 72 * time.Hour
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clock is a settable time source shared by every service of a fixture.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// recordingBus captures published events.
type recordingBus struct {
	mu       sync.Mutex
	channels []string
	events   []domain.Event
	stream   int
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) StreamAppend(context.Context, string, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream++
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func (b *recordingBus) count(t domain.EventType) int {
	n := 0
	for _, have := range b.types() {
		if have == t {
			n++
		}
	}
	return n
}

// memLocks is an in-process LockManager with the same non-blocking
// semantics as the Redis one.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// memArchive records archived evidence.
type memArchive struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (a *memArchive) Store(_ context.Context, hash string, canonical []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		a.store = make(map[string][]byte)
	}
	a.store[hash] = canonical
	return nil
}

type testKey struct {
	signer *crypto.Signer
	id     string
}

func newKey(t *testing.T) testKey {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := crypto.NewSigner(hex.EncodeToString(ethcrypto.FromECDSA(pk)), testChainID)
	if err != nil {
		t.Fatal(err)
	}
	return testKey{signer: s, id: domain.NormalizeID(s.Address().Hex())}
}

func (k testKey) approve(t *testing.T, sub domain.ResolutionSubmission, evidenceHash string) domain.Approval {
	t.Helper()
	sig, err := k.signer.SignApproval(resolution.Payload(sub, evidenceHash))
	if err != nil {
		t.Fatal(err)
	}
	return domain.Approval{Admin: k.signer.Address().Hex(), Signature: sig}
}

// fixture wires every service over one in-memory store.
type fixture struct {
	db         *memory.DB
	bus        *recordingBus
	locks      *memLocks
	archive    *memArchive
	clock      *clock
	dir        *registry.Directory
	admin      testKey
	admin2     testKey
	oracle     testKey
	resolution *ResolutionService
	disputes   *DisputeService
	settlement *SettlementService
	prices     *PriceService
	markets    *MarketService
	finalizer  *Finalizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:      memory.New(),
		bus:     &recordingBus{},
		locks:   &memLocks{},
		archive: &memArchive{},
		clock:   &clock{t: t0},
		admin:   newKey(t),
		admin2:  newKey(t),
		oracle:  newKey(t),
	}
	f.dir = registry.New([]string{f.admin.id, f.admin2.id}, []string{f.oracle.id})
	log := discardLogger()

	f.resolution = NewResolutionService(ResolutionDeps{
		Markets:   f.db.Markets(),
		Options:   f.db.Options(),
		Records:   f.db.Resolutions(),
		Audit:     f.db.Audit(),
		Locks:     f.locks,
		Directory: f.dir,
		Archive:   f.archive,
		Bus:       f.bus,
	}, ResolutionConfig{
		DisputePeriod: disputePeriod,
		VerifyTimeout: time.Second,
		Quorum:        resolution.DefaultPolicy(),
		ChainID:       testChainID,
	}, log)
	f.resolution.now = f.clock.Now

	f.disputes = NewDisputeService(f.db.Options(), f.db.Disputes(), f.db.Audit(), f.bus, nil, log)
	f.disputes.now = f.clock.Now

	f.settlement = NewSettlementService(SettlementDeps{
		Markets:   f.db.Markets(),
		Options:   f.db.Options(),
		Disputes:  f.db.Disputes(),
		Positions: f.db.Positions(),
		Liquidity: f.db.Liquidity(),
		Audit:     f.db.Audit(),
		Bus:       f.bus,
	}, settlement.NewCalculator(dispute.Policy{}, decimal.NewFromInt(1)), log)
	f.settlement.now = f.clock.Now

	f.prices = NewPriceService(f.db.Markets(), f.db.Options(), nil, f.bus, 100, log)
	f.prices.now = f.clock.Now

	f.markets = NewMarketService(f.db.Markets(), f.db.Disputes(), dispute.Policy{}, log)
	f.markets.now = f.clock.Now

	f.finalizer = NewFinalizer(f.db.Markets(), f.db.Options(), f.db.Disputes(), f.bus, nil, dispute.Policy{}, time.Minute, log)
	f.finalizer.now = f.clock.Now
	return f
}

const creatorID = "0x00000000000000000000000000000000000000c1"

var (
	creator = domain.Principal{ID: creatorID, Roles: []domain.Role{domain.RoleUser}}
	system  = domain.Principal{ID: "system:pricer", Roles: []domain.Role{domain.RoleSystem}}
)

func (f *fixture) adminPrincipal(k testKey) domain.Principal {
	return f.dir.Principal(context.Background(), k.id, nil)
}

// seedMarket creates a market with the given options, all starting at the
// given pool quantities.
func (f *fixture) seedMarket(t *testing.T, id string, mode domain.ResolutionMode, volume string, optionIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := f.db.Markets().Upsert(ctx, domain.Market{
		ID:                 id,
		Question:           "Will it happen?",
		CreatorID:          creatorID,
		LiquidityParameter: dec("100000"),
		ResolutionMode:     mode,
		TotalVolume:        dec(volume),
		Pool: domain.LiquidityPool{
			SharedLiquidity:   dec("900"),
			AccumulatedFees:   dec("100"),
			TotalSharedShares: dec("400"),
		},
	}); err != nil {
		t.Fatal(err)
	}
	for _, o := range optionIDs {
		if err := f.db.Options().Upsert(ctx, domain.MarketOption{
			ID:          o,
			MarketID:    id,
			Label:       o,
			YesQuantity: dec("1000"),
			NoQuantity:  dec("1000"),
		}); err != nil {
			t.Fatal(err)
		}
	}
}

const manualEvidence = `{"source":"manual","data":{"note":"announced on stage"}}`

func submission(market, option string, side domain.Side, ev string) domain.ResolutionSubmission {
	sub := domain.ResolutionSubmission{MarketID: market, OptionID: option, WinningSide: side}
	if ev != "" {
		sub.Evidence = json.RawMessage(ev)
	}
	return sub
}
