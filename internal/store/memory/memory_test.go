package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

func seed(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db := New()
	if err := db.Markets().Upsert(ctx, domain.Market{
		ID: "m", LiquidityParameter: decimal.NewFromInt(100),
		Pool: domain.LiquidityPool{
			SharedLiquidity:   decimal.NewFromInt(1000),
			TotalSharedShares: decimal.NewFromInt(10),
		},
	}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b"} {
		if err := db.Options().Upsert(ctx, domain.MarketOption{ID: id, MarketID: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestResolve_ExactlyOnceUnderContention(t *testing.T) {
	db := seed(t)
	ctx := context.Background()

	var wins, dupes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := domain.SideYes
			if i%2 == 1 {
				side = domain.SideNo
			}
			_, err := db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "a", WinningSide: side, ResolvedAt: time.Now()})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrAlreadyResolved):
				dupes.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 || dupes.Load() != 31 {
		t.Fatalf("wins=%d dupes=%d", wins.Load(), dupes.Load())
	}
	recs, _ := db.Resolutions().ListByOption(ctx, "a")
	if len(recs) != 1 {
		t.Fatalf("resolution records = %d", len(recs))
	}
}

func TestResolve_DerivesMarketFlag(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	res, err := db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "a", WinningSide: domain.SideYes, ResolvedAt: time.Now()})
	if err != nil || res.MarketResolved {
		t.Fatalf("first option: %+v %v", res, err)
	}
	res, err = db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "b", WinningSide: domain.SideNo, ResolvedAt: time.Now()})
	if err != nil || !res.MarketResolved {
		t.Fatalf("last option: %+v %v", res, err)
	}
	m, _ := db.Markets().GetByID(ctx, "m")
	if !m.IsResolved {
		t.Fatal("market flag not derived")
	}
	if _, err := db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "zz"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing option: %v", err)
	}
}

func TestApplyFill(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	o, err := db.Options().ApplyFill(ctx, domain.Fill{OptionID: "a", Side: domain.SideYes, Shares: decimal.NewFromInt(5), Notional: decimal.NewFromInt(3)}, decimal.RequireFromString("0.06"))
	if err != nil || !o.YesQuantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("fill: %+v %v", o, err)
	}
	m, _ := db.Markets().GetByID(ctx, "m")
	if !m.TotalVolume.Equal(decimal.NewFromInt(3)) || !m.Pool.AccumulatedFees.Equal(decimal.RequireFromString("0.06")) {
		t.Fatalf("market = %+v", m)
	}
	_, _ = db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "a", WinningSide: domain.SideYes, ResolvedAt: time.Now()})
	if _, err := db.Options().ApplyFill(ctx, domain.Fill{OptionID: "a", Side: domain.SideNo, Shares: decimal.NewFromInt(1)}, decimal.Zero); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("fill after resolve: %v", err)
	}
}

func TestMarkClaimed_Once(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	_ = db.Positions().Upsert(ctx, domain.Position{ID: "p", Owner: "0xA", MarketID: "m", OptionID: "a", Side: domain.SideYes, Shares: decimal.NewFromInt(1)})

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Positions().MarkClaimed(ctx, "p", decimal.NewFromInt(1), time.Now())
			if err == nil {
				ok.Add(1)
			} else if errors.Is(err, domain.ErrAlreadyClaimed) {
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || dup.Load() != 7 {
		t.Fatalf("ok=%d dup=%d", ok.Load(), dup.Load())
	}
	p, _ := db.Positions().GetByID(ctx, "p")
	if p.Owner != "0xa" || p.ClaimedAt == nil {
		t.Fatalf("position = %+v", p)
	}
}

func TestWithdraw_Once(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	_ = db.Liquidity().Upsert(ctx, domain.LiquidityPosition{ID: "lp", Owner: "0xA", MarketID: "m", Shares: decimal.NewFromInt(5)})

	half := func(pool domain.LiquidityPool, lp domain.LiquidityPosition) (decimal.Decimal, domain.LiquidityPool, error) {
		pay := pool.SharedLiquidity.Div(decimal.NewFromInt(2))
		pool.SharedLiquidity = pool.SharedLiquidity.Sub(pay)
		pool.TotalSharedShares = pool.TotalSharedShares.Sub(lp.Shares)
		return pay, pool, nil
	}
	got, err := db.Liquidity().Withdraw(ctx, "lp", time.Now(), half)
	if err != nil || !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("withdraw: %s %v", got, err)
	}
	if _, err := db.Liquidity().Withdraw(ctx, "lp", time.Now(), half); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("second withdraw: %v", err)
	}
	m, _ := db.Markets().GetByID(ctx, "m")
	if !m.Pool.SharedLiquidity.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("pool = %+v", m.Pool)
	}
}

func TestDisputes(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	d := domain.Dispute{MarketID: "m", OptionID: "a", RaisedBy: "0xa", Reason: "wrong"}
	if err := db.Disputes().Create(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := db.Disputes().Create(ctx, d); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate: %v", err)
	}
	has, _ := db.Disputes().HasDispute(ctx, "a")
	set, _ := db.Disputes().DisputedOptions(ctx, "m")
	if !has || !set["a"] || set["b"] {
		t.Fatalf("has=%v set=%v", has, set)
	}
}

func TestFinalizable(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	now := time.Now()
	later := now.Add(time.Hour)
	_, _ = db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "a", WinningSide: domain.SideYes, ResolvedAt: now, DisputeDeadline: &later})
	_, _ = db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "b", WinningSide: domain.SideNo, ResolvedAt: now})

	opts, _ := db.Options().ListFinalizable(ctx, now, 10)
	if len(opts) != 1 || opts[0].ID != "b" {
		t.Fatalf("finalizable now = %v", opts)
	}
	opts, _ = db.Options().ListFinalizable(ctx, later, 10)
	if len(opts) != 2 {
		t.Fatalf("finalizable later = %d", len(opts))
	}
	if ok, _ := db.Options().MarkFinalized(ctx, "b", later); !ok {
		t.Fatal("first mark")
	}
	if ok, _ := db.Options().MarkFinalized(ctx, "b", later); ok {
		t.Fatal("second mark should report false")
	}
}

func TestFinalizable_MissingResolvedAt(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	now := time.Now()
	_, _ = db.Options().Resolve(ctx, domain.ResolveParams{OptionID: "a", WinningSide: domain.SideYes, ResolvedAt: now})
	if err := db.Options().Upsert(ctx, domain.MarketOption{ID: "b", MarketID: "m", IsResolved: true, WinningSide: domain.SideNo}); err != nil {
		t.Fatal(err)
	}

	opts, err := db.Options().ListFinalizable(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 2 || opts[0].ID != "a" || opts[1].ID != "b" {
		t.Fatalf("finalizable = %v", opts)
	}
}
