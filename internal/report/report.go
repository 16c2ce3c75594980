// Package report derives attendance summaries from the verification
// ledger. Everything here is read-only and recomputed on demand; there
// are no counters to drift out of sync with the ledger.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mealcard/internal/verify"
)

// Source is the read side of the ledger.
type Source interface {
	VerifiedCountsByMeal(ctx context.Context, from, to string) (map[verify.MealType]int, error)
	MonthRecords(ctx context.Context, token string, year int, month time.Month) ([]verify.Record, error)
}

// Reporter answers aggregate queries for the presentation layer.
type Reporter struct {
	src Source
}

// New creates a reporter over a ledger.
func New(src Source) *Reporter {
	return &Reporter{src: src}
}

// CountsByMeal returns verified-meal counts per meal type for an
// inclusive date range. Every meal type is present in the result, so
// callers can render zeroes without nil checks.
func (r *Reporter) CountsByMeal(ctx context.Context, from, to string) (map[verify.MealType]int, error) {
	if _, err := time.Parse(verify.DateLayout, from); err != nil {
		return nil, fmt.Errorf("bad from date %q: %w", from, err)
	}
	if _, err := time.Parse(verify.DateLayout, to); err != nil {
		return nil, fmt.Errorf("bad to date %q: %w", to, err)
	}
	if from > to {
		return nil, errors.New("from date after to date")
	}
	counts, err := r.src.VerifiedCountsByMeal(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, meal := range []verify.MealType{verify.Breakfast, verify.Lunch, verify.Dinner} {
		if _, ok := counts[meal]; !ok {
			counts[meal] = 0
		}
	}
	return counts, nil
}

// Grid is a per-student month view: day of month → meal type → record
// status. Days or meals with no attempt are simply absent.
type Grid map[int]map[verify.MealType]verify.Status

// StudentGrid builds the monthly attendance grid for one student.
func (r *Reporter) StudentGrid(ctx context.Context, token string, year int, month time.Month) (Grid, error) {
	if token == "" {
		return nil, errors.New("token required")
	}
	if year < 2000 || year > 2200 {
		return nil, fmt.Errorf("year %d out of range", year)
	}
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	recs, err := r.src.MonthRecords(ctx, token, year, month)
	if err != nil {
		return nil, err
	}
	grid := make(Grid)
	for _, rec := range recs {
		day, err := dayOfMonth(rec.Date)
		if err != nil {
			return nil, err
		}
		if grid[day] == nil {
			grid[day] = make(map[verify.MealType]verify.Status)
		}
		grid[day][rec.Meal] = rec.Status
	}
	return grid, nil
}

func dayOfMonth(date string) (int, error) {
	t, err := time.Parse(verify.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("corrupt ledger date %q: %w", date, err)
	}
	return t.Day(), nil
}
