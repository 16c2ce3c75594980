package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for ledger keys.
const DateLayout = "2006-01-02"

// MealType is one of the three daily meal periods.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

// ParseMealType validates a meal type string.
func ParseMealType(s string) (MealType, error) {
	switch MealType(strings.ToLower(strings.TrimSpace(s))) {
	case Breakfast:
		return Breakfast, nil
	case Lunch:
		return Lunch, nil
	case Dinner:
		return Dinner, nil
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// Status is the state of a ledger record.
type Status string

const (
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Request is a single verification attempt from a terminal.
type Request struct {
	Token       string
	Meal        MealType
	RequestedAt time.Time
}

// Record is the ledger entry for one (token, meal, date) key.
// VerifiedAt is set at the first grant and never cleared, so a record
// downgraded to failed by a duplicate scan still remembers that the
// meal was served that day.
type Record struct {
	ID          string
	Token       string
	Meal        MealType
	Date        string
	Status      Status
	VerifiedAt  *time.Time
	AttemptedAt time.Time
	CreatedAt   time.Time
}

// Outcome reason codes returned to terminals.
const (
	ReasonGranted       = "granted"
	ReasonAccessDenied  = "access_denied"
	ReasonDuplicate     = "duplicate_attempt"
	ReasonAlreadyServed = "already_served"
	ReasonUnavailable   = "unavailable"
)

// Outcome is the terminal-facing result of a verification attempt.
// Policy denials are outcomes, not errors.
type Outcome struct {
	Granted bool
	Reason  string
	Message string
}

// Ledger write errors used for conditional-write conflicts.
var (
	ErrDuplicateKey = errors.New("ledger record already exists")
	ErrStaleRecord  = errors.New("ledger record changed since read")
)

// Ledger is the authoritative store of verification records.
// Create must refuse to insert a second record for an existing key;
// Update must apply only if the stored status and attempt time still
// match prev, so concurrent writers cannot clobber each other.
type Ledger interface {
	Find(ctx context.Context, token string, meal MealType, date string) (*Record, error)
	Create(ctx context.Context, rec Record) error
	Update(ctx context.Context, prev Record, next Record) error
}

// DenialList answers whether a token is actively denied service.
// The entries themselves are managed by an external admin flow.
type DenialList interface {
	IsDenied(ctx context.Context, token string) (bool, error)
}
