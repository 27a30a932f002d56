// Package memory implements the domain stores in process memory. It keeps
// the same atomicity guarantees as the Postgres stores and backs tests and
// single-process demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// DB holds every table behind one mutex.
type DB struct {
	mu          sync.Mutex
	markets     map[string]domain.Market
	options     map[string]domain.MarketOption
	resolutions []domain.Resolution
	disputes    []domain.Dispute
	positions   map[string]domain.Position
	lps         map[string]domain.LiquidityPosition
	audit       []domain.AuditEntry
	now         func() time.Time
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		markets:   make(map[string]domain.Market),
		options:   make(map[string]domain.MarketOption),
		positions: make(map[string]domain.Position),
		lps:       make(map[string]domain.LiquidityPosition),
		now:       time.Now,
	}
}

func (db *DB) Markets() *MarketStore         { return &MarketStore{db} }
func (db *DB) Options() *OptionStore         { return &OptionStore{db} }
func (db *DB) Resolutions() *ResolutionStore { return &ResolutionStore{db} }
func (db *DB) Disputes() *DisputeStore       { return &DisputeStore{db} }
func (db *DB) Positions() *PositionStore     { return &PositionStore{db} }
func (db *DB) Liquidity() *LiquidityStore    { return &LiquidityStore{db} }
func (db *DB) Audit() *AuditStore            { return &AuditStore{db} }

// MarketStore implements domain.MarketStore.
type MarketStore struct{ db *DB }

func (s *MarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if old, ok := s.db.markets[m.ID]; ok {
		old.Question = m.Question
		old.CreatorID = m.CreatorID
		old.LiquidityParameter = m.LiquidityParameter
		old.ResolutionMode = m.ResolutionMode
		old.UpdatedAt = s.db.now()
		s.db.markets[m.ID] = old
		return nil
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.db.now()
	}
	m.UpdatedAt = m.CreatedAt
	m.IsResolved = false
	s.db.markets[m.ID] = m
	return nil
}

func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MarketStore) ListOptions(_ context.Context, marketID string) ([]domain.MarketOption, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.optionsOf(marketID), nil
}

func (db *DB) optionsOf(marketID string) []domain.MarketOption {
	var out []domain.MarketOption
	for _, o := range db.options {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OptionStore implements domain.OptionStore.
type OptionStore struct{ db *DB }

func (s *OptionStore) Upsert(_ context.Context, o domain.MarketOption) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.markets[o.MarketID]; !ok {
		return domain.ErrNotFound
	}
	if old, ok := s.db.options[o.ID]; ok {
		if old.IsResolved {
			return nil
		}
		old.Label = o.Label
		old.YesQuantity = o.YesQuantity
		old.NoQuantity = o.NoQuantity
		s.db.options[o.ID] = old
		return nil
	}
	s.db.options[o.ID] = o
	return nil
}

func (s *OptionStore) GetByID(_ context.Context, id string) (domain.MarketOption, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.options[id]
	if !ok {
		return domain.MarketOption{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *OptionStore) Resolve(_ context.Context, p domain.ResolveParams) (domain.ResolveResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.options[p.OptionID]
	if !ok {
		return domain.ResolveResult{}, domain.ErrNotFound
	}
	if o.IsResolved {
		return domain.ResolveResult{}, domain.ErrAlreadyResolved
	}
	at := p.ResolvedAt
	o.IsResolved = true
	o.WinningSide = p.WinningSide
	o.DisputeDeadline = p.DisputeDeadline
	o.EvidenceHash = p.EvidenceHash
	o.ResolvedAt = &at
	s.db.options[o.ID] = o

	rec := p.Record
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.MarketID = o.MarketID
	rec.OptionID = o.ID
	s.db.resolutions = append(s.db.resolutions, rec)

	m := s.db.markets[o.MarketID]
	m.IsResolved = domain.AllResolved(s.db.optionsOf(o.MarketID))
	m.UpdatedAt = s.db.now()
	s.db.markets[m.ID] = m

	return domain.ResolveResult{Option: o, MarketResolved: m.IsResolved}, nil
}

func (s *OptionStore) ApplyFill(_ context.Context, f domain.Fill, fee decimal.Decimal) (domain.MarketOption, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.options[f.OptionID]
	if !ok {
		return domain.MarketOption{}, domain.ErrNotFound
	}
	if o.IsResolved {
		return domain.MarketOption{}, domain.ErrAlreadyResolved
	}
	switch f.Side {
	case domain.SideYes:
		o.YesQuantity = o.YesQuantity.Add(f.Shares)
	case domain.SideNo:
		o.NoQuantity = o.NoQuantity.Add(f.Shares)
	}
	s.db.options[o.ID] = o

	m := s.db.markets[o.MarketID]
	m.TotalVolume = m.TotalVolume.Add(f.Notional)
	m.Pool.AccumulatedFees = m.Pool.AccumulatedFees.Add(fee)
	m.UpdatedAt = s.db.now()
	s.db.markets[m.ID] = m
	return o, nil
}

func (s *OptionStore) ListFinalizable(_ context.Context, now time.Time, limit int) ([]domain.MarketOption, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.MarketOption
	for _, o := range s.db.options {
		if !o.IsResolved || o.FinalizedAt != nil {
			continue
		}
		if o.DisputeDeadline != nil && o.DisputeDeadline.After(now) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareResolvedAt(out[i].ResolvedAt, out[j].ResolvedAt); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// compareResolvedAt sorts a missing timestamp last, like NULLs under
// ORDER BY resolved_at in postgres.
func compareResolvedAt(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func (s *OptionStore) MarkFinalized(_ context.Context, optionID string, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.options[optionID]
	if !ok || !o.IsResolved || o.FinalizedAt != nil {
		return false, nil
	}
	o.FinalizedAt = &at
	s.db.options[optionID] = o
	return true, nil
}

// ResolutionStore implements domain.ResolutionStore.
type ResolutionStore struct{ db *DB }

func (s *ResolutionStore) ListByOption(_ context.Context, optionID string) ([]domain.Resolution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Resolution
	for _, r := range s.db.resolutions {
		if r.OptionID == optionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ResolutionStore) ListByMarket(_ context.Context, marketID string) ([]domain.Resolution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Resolution
	for _, r := range s.db.resolutions {
		if r.MarketID == marketID {
			out = append(out, r)
		}
	}
	return out, nil
}

// DisputeStore implements domain.DisputeStore.
type DisputeStore struct{ db *DB }

func (s *DisputeStore) Create(_ context.Context, d domain.Dispute) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, e := range s.db.disputes {
		if e.OptionID == d.OptionID && e.RaisedBy == d.RaisedBy {
			return domain.ErrAlreadyExists
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.db.disputes = append(s.db.disputes, d)
	return nil
}

func (s *DisputeStore) ListByOption(_ context.Context, optionID string) ([]domain.Dispute, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Dispute
	for _, d := range s.db.disputes {
		if d.OptionID == optionID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *DisputeStore) HasDispute(_ context.Context, optionID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, d := range s.db.disputes {
		if d.OptionID == optionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *DisputeStore) DisputedOptions(_ context.Context, marketID string) (map[string]bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make(map[string]bool)
	for _, d := range s.db.disputes {
		if d.MarketID == marketID {
			out[d.OptionID] = true
		}
	}
	return out, nil
}

// PositionStore implements domain.PositionStore.
type PositionStore struct{ db *DB }

func (s *PositionStore) Upsert(_ context.Context, p domain.Position) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if old, ok := s.db.positions[p.ID]; ok && old.ClaimedAt != nil {
		return nil
	}
	p.Owner = domain.NormalizeID(p.Owner)
	p.ClaimedAt, p.Payout = nil, nil
	s.db.positions[p.ID] = p
	return nil
}

func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *PositionStore) MarkClaimed(_ context.Context, id string, payout decimal.Decimal, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.ClaimedAt != nil {
		return domain.ErrAlreadyClaimed
	}
	p.ClaimedAt = &at
	p.Payout = &payout
	s.db.positions[id] = p
	return nil
}

// LiquidityStore implements domain.LiquidityStore.
type LiquidityStore struct{ db *DB }

func (s *LiquidityStore) Upsert(_ context.Context, lp domain.LiquidityPosition) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if old, ok := s.db.lps[lp.ID]; ok && old.WithdrawnAt != nil {
		return nil
	}
	lp.Owner = domain.NormalizeID(lp.Owner)
	lp.WithdrawnAt, lp.Payout = nil, nil
	s.db.lps[lp.ID] = lp
	return nil
}

func (s *LiquidityStore) GetByID(_ context.Context, id string) (domain.LiquidityPosition, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	lp, ok := s.db.lps[id]
	if !ok {
		return domain.LiquidityPosition{}, domain.ErrNotFound
	}
	return lp, nil
}

func (s *LiquidityStore) Withdraw(_ context.Context, id string, at time.Time, fn domain.WithdrawFunc) (decimal.Decimal, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	lp, ok := s.db.lps[id]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	if lp.WithdrawnAt != nil {
		return decimal.Zero, domain.ErrAlreadyClaimed
	}
	m, ok := s.db.markets[lp.MarketID]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	payout, next, err := fn(m.Pool, lp)
	if err != nil {
		return decimal.Zero, err
	}
	m.Pool = next
	s.db.markets[m.ID] = m
	lp.WithdrawnAt = &at
	lp.Payout = &payout
	s.db.lps[id] = lp
	return payout, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct{ db *DB }

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, domain.AuditEntry{
		ID:        int64(len(s.db.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.db.now(),
	})
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(s.db.audit) - 1; i >= 0; i-- {
		e := s.db.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

var (
	_ domain.MarketStore     = (*MarketStore)(nil)
	_ domain.OptionStore     = (*OptionStore)(nil)
	_ domain.ResolutionStore = (*ResolutionStore)(nil)
	_ domain.DisputeStore    = (*DisputeStore)(nil)
	_ domain.PositionStore   = (*PositionStore)(nil)
	_ domain.LiquidityStore  = (*LiquidityStore)(nil)
	_ domain.AuditStore      = (*AuditStore)(nil)
)
