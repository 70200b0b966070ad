package usecase

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PulsePrice/internal/domain/models"
	"PulsePrice/pkg/util"
)

// CandleStore owns the per-token price state: last price, the live daily
// candle and the bounded history. Tokens are isolated by their own lock so
// updates to different tokens never contend.
type CandleStore struct {
	mu      sync.RWMutex
	entries map[string]*candleEntry

	seed   func() int64
	now    func() time.Time
	writes atomic.Int64
}

type candleEntry struct {
	mu    sync.RWMutex
	state models.TokenPriceState
}

// CandleStoreOption configures CandleStore.
type CandleStoreOption func(*CandleStore)

// WithSeedPrice sets the price a token starts at on first access.
func WithSeedPrice(seed func() int64) CandleStoreOption {
	return func(s *CandleStore) {
		if seed != nil {
			s.seed = seed
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CandleStoreOption {
	return func(s *CandleStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCandleStore(opts ...CandleStoreOption) *CandleStore {
	s := &CandleStore{
		entries: make(map[string]*candleEntry),
		seed:    func() int64 { return models.DefaultEngineConfig().MinPrice },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entry returns the token's entry, creating a seeded one on first access.
func (s *CandleStore) entry(tokenID string) *candleEntry {
	s.mu.RLock()
	e, ok := s.entries[tokenID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[tokenID]; ok {
		return e
	}
	e = &candleEntry{state: s.seedState()}
	s.entries[tokenID] = e
	return e
}

func (s *CandleStore) seedState() models.TokenPriceState {
	price := s.seed()
	now := s.now()
	return models.TokenPriceState{
		LastPrice:           price,
		LastChangeTimestamp: now.UnixMilli(),
		Ohlc: models.OhlcCandle{
			Open:              price,
			High:              price,
			Low:               price,
			Close:             price,
			DayStartTimestamp: util.StartOfDayUTC(now).UnixMilli(),
		},
	}
}

// Get returns a copy of the token's state.
func (s *CandleStore) Get(tokenID string) models.TokenPriceState {
	e := s.entry(tokenID)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyState(e.state)
}

// Quote returns the {price, ohlc} view without copying history.
func (s *CandleStore) Quote(tokenID string) models.TokenQuote {
	e := s.entry(tokenID)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Quote()
}

// History returns up to limit most recent points, oldest first.
func (s *CandleStore) History(tokenID string, limit int) []models.PricePoint {
	e := s.entry(tokenID)
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := e.state.History
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]models.PricePoint, len(h))
	copy(out, h)
	return out
}

// Update applies a computed price: the candle rolls over on a new UTC day,
// otherwise high, low and close follow the price. The point is appended to
// history and the oldest point is evicted past MaxHistory.
func (s *CandleStore) Update(tokenID string, res models.PriceResult) models.PricePoint {
	e := s.entry(tokenID)
	e.mu.Lock()
	defer e.mu.Unlock()

	st := &e.state
	price := res.Price
	if !util.SameUTCDay(st.Ohlc.DayStartTimestamp, res.Timestamp) {
		open := st.Ohlc.Close
		if open <= 0 {
			open = price
		}
		st.Ohlc = models.OhlcCandle{
			Open:              open,
			High:              max(open, price),
			Low:               min(open, price),
			Close:             price,
			DayStartTimestamp: util.StartOfDayUTCMillis(res.Timestamp),
		}
	} else {
		st.Ohlc.High = max(st.Ohlc.High, price)
		st.Ohlc.Low = min(st.Ohlc.Low, price)
		st.Ohlc.Close = price
	}

	st.LastPrice = price
	st.LastChangeTimestamp = res.LastChangeTimestamp
	st.Seq++

	point := models.PricePoint{Timestamp: res.Timestamp, Price: price}
	st.History = append(st.History, point)
	if over := len(st.History) - models.MaxHistory; over > 0 {
		// shift down so the backing array does not grow without bound
		n := copy(st.History, st.History[over:])
		st.History = st.History[:n]
	}

	s.writes.Add(1)
	return point
}

// Snapshot returns {price, ohlc} for every token held.
func (s *CandleStore) Snapshot() map[string]models.TokenQuote {
	s.mu.RLock()
	entries := make(map[string]*candleEntry, len(s.entries))
	for id, e := range s.entries {
		entries[id] = e
	}
	s.mu.RUnlock()

	out := make(map[string]models.TokenQuote, len(entries))
	for id, e := range entries {
		e.mu.RLock()
		out[id] = e.state.Quote()
		e.mu.RUnlock()
	}
	return out
}

// Restore loads previously persisted states, replacing what is held.
func (s *CandleStore) Restore(states map[string]models.TokenPriceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range states {
		st = copyState(st)
		if over := len(st.History) - models.MaxHistory; over > 0 {
			st.History = st.History[over:]
		}
		s.entries[id] = &candleEntry{state: st}
	}
}

// Tokens lists the token ids held, sorted.
func (s *CandleStore) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Writes counts Update calls since creation.
func (s *CandleStore) Writes() int64 {
	return s.writes.Load()
}

func copyState(st models.TokenPriceState) models.TokenPriceState {
	out := st
	if st.History != nil {
		out.History = make([]models.PricePoint, len(st.History))
		copy(out.History, st.History)
	}
	return out
}
