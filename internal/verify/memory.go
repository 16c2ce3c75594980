package verify

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryLedger is a map-backed ledger for dev and tests, selected by
// LEDGER_BACKEND=memory.
type MemoryLedger struct {
	mu   sync.Mutex
	recs map[string]Record
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{recs: make(map[string]Record)}
}

func memKey(token string, meal MealType, date string) string {
	return token + "|" + string(meal) + "|" + date
}

// Find returns the current record for a key, or nil.
func (l *MemoryLedger) Find(ctx context.Context, token string, meal MealType, date string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[memKey(token, meal, date)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Create inserts a record, failing if the key already exists.
func (l *MemoryLedger) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := memKey(rec.Token, rec.Meal, rec.Date)
	if _, ok := l.recs[key]; ok {
		return ErrDuplicateKey
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	l.recs[key] = rec
	return nil
}

// Update replaces a record only if the stored status and attempt time
// still match prev.
func (l *MemoryLedger) Update(ctx context.Context, prev, next Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := memKey(prev.Token, prev.Meal, prev.Date)
	cur, ok := l.recs[key]
	if !ok || cur.Status != prev.Status || !cur.AttemptedAt.Equal(prev.AttemptedAt) {
		return ErrStaleRecord
	}
	next.CreatedAt = cur.CreatedAt
	l.recs[key] = next
	return nil
}

// VerifiedCountsByMeal counts verified records per meal type over an
// inclusive date range.
func (l *MemoryLedger) VerifiedCountsByMeal(ctx context.Context, from, to string) (map[MealType]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[MealType]int)
	for _, rec := range l.recs {
		if rec.Status != StatusVerified {
			continue
		}
		if rec.Date < from || rec.Date > to {
			continue
		}
		counts[rec.Meal]++
	}
	return counts, nil
}

// MonthRecords returns a student's records for one calendar month,
// ordered by date.
func (l *MemoryLedger) MonthRecords(ctx context.Context, token string, year int, month time.Month) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, rec := range l.recs {
		if rec.Token == token && strings.HasPrefix(rec.Date, prefix+"-") {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// MemoryDenialList is a static denial set for dev and tests.
type MemoryDenialList struct {
	mu     sync.RWMutex
	denied map[string]bool
}

// NewMemoryDenialList creates a denial list from the given tokens.
func NewMemoryDenialList(tokens ...string) *MemoryDenialList {
	denied := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		denied[t] = true
	}
	return &MemoryDenialList{denied: denied}
}

// IsDenied reports whether the token is actively denied.
func (d *MemoryDenialList) IsDenied(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.denied[token], nil
}

// Set toggles a token's denial state.
func (d *MemoryDenialList) Set(token string, denied bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if denied {
		d.denied[token] = true
	} else {
		delete(d.denied, token)
	}
}
