package verify

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Attempt is published to the audit queue for every outcome.
type Attempt struct {
	Token   string    `json:"token"`
	Meal    MealType  `json:"meal"`
	Reason  string    `json:"reason"`
	Granted bool      `json:"granted"`
	At      time.Time `json:"at"`
}

// AuditPublisher receives a copy of every attempt for asynchronous
// audit logging. Publish failures must never block verification.
type AuditPublisher interface {
	PublishAttempt(ctx context.Context, a Attempt) error
}

// Engine is the sole authority for turning a request into an outcome.
type Engine struct {
	ledger  Ledger
	denials DenialList
	audit   AuditPublisher
	window  time.Duration
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	locks   keyMutex
}

// NewEngine creates an engine with the given replay window and campus
// timezone. audit may be nil when no queue is configured.
func NewEngine(ledger Ledger, denials DenialList, audit AuditPublisher, window, timeout time.Duration, loc *time.Location) *Engine {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		ledger:  ledger,
		denials: denials,
		audit:   audit,
		window:  window,
		timeout: timeout,
		loc:     loc,
		now:     time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Today returns the current campus calendar day.
func (e *Engine) Today() string {
	return e.now().In(e.loc).Format(DateLayout)
}

// Verify resolves a request to a terminal outcome. Policy denials are
// returned as outcomes; the error return is reserved for malformed
// requests and corrupted storage.
func (e *Engine) Verify(ctx context.Context, req Request) (Outcome, error) {
	if req.Token == "" {
		return Outcome{}, errors.New("token required")
	}
	if _, err := ParseMealType(string(req.Meal)); err != nil {
		return Outcome{}, err
	}

	at := req.RequestedAt
	if at.IsZero() {
		at = e.now()
	}
	at = at.In(e.loc)
	date := at.Format(DateLayout)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	denied, err := e.denials.IsDenied(ctx, req.Token)
	if err != nil {
		log.Printf("denial lookup failed for %s: %v", req.Token, err)
		return e.finish(req, at, unavailable()), nil
	}
	if denied {
		return e.finish(req, at, Outcome{Reason: ReasonAccessDenied, Message: "access denied"}), nil
	}

	// Per-key critical section: the read-modify-write below must not
	// interleave for the same (token, meal, date).
	unlock := e.locks.lock(req.Token + "|" + string(req.Meal) + "|" + date)
	defer unlock()

	rec, err := e.ledger.Find(ctx, req.Token, req.Meal, date)
	if err != nil {
		log.Printf("ledger lookup failed for %s/%s/%s: %v", req.Token, req.Meal, date, err)
		return e.finish(req, at, unavailable()), nil
	}

	out, err := e.decide(ctx, req, rec, at, date)
	if err != nil {
		return Outcome{}, err
	}
	return e.finish(req, at, out), nil
}

func (e *Engine) decide(ctx context.Context, req Request, rec *Record, at time.Time, date string) (Outcome, error) {
	if rec == nil {
		fresh := Record{
			ID:          uuid.NewString(),
			Token:       req.Token,
			Meal:        req.Meal,
			Date:        date,
			Status:      StatusVerified,
			VerifiedAt:  &at,
			AttemptedAt: at,
		}
		switch err := e.ledger.Create(ctx, fresh); {
		case err == nil:
			return Outcome{Granted: true, Reason: ReasonGranted, Message: "meal verified"}, nil
		case errors.Is(err, ErrDuplicateKey):
			// Another instance granted between our read and write.
			return Outcome{Reason: ReasonDuplicate, Message: "duplicate attempt within replay window"}, nil
		default:
			log.Printf("ledger create failed for %s/%s/%s: %v", req.Token, req.Meal, date, err)
			return unavailable(), nil
		}
	}

	elapsed := at.Sub(rec.AttemptedAt)

	switch rec.Status {
	case StatusVerified:
		if elapsed < e.window {
			// Duplicate scan: the grant itself is downgraded so the
			// failure shows up in the ledger and in reporting.
			next := *rec
			next.Status = StatusFailed
			next.AttemptedAt = at
			if err := e.ledger.Update(ctx, *rec, next); err != nil {
				if errors.Is(err, ErrStaleRecord) {
					return unavailable(), nil
				}
				log.Printf("ledger update failed for %s/%s/%s: %v", req.Token, req.Meal, date, err)
				return unavailable(), nil
			}
			return Outcome{Reason: ReasonDuplicate, Message: "duplicate attempt within replay window"}, nil
		}
		return Outcome{Reason: ReasonAlreadyServed, Message: "already served"}, nil

	case StatusFailed:
		if elapsed < e.window {
			return Outcome{Reason: ReasonDuplicate, Message: "duplicate attempt within replay window"}, nil
		}
		if rec.VerifiedAt != nil {
			// Verified beats failed: the meal was served earlier today.
			return Outcome{Reason: ReasonAlreadyServed, Message: "already served"}, nil
		}
		next := *rec
		next.Status = StatusVerified
		next.VerifiedAt = &at
		next.AttemptedAt = at
		if err := e.ledger.Update(ctx, *rec, next); err != nil {
			if errors.Is(err, ErrStaleRecord) {
				return unavailable(), nil
			}
			log.Printf("ledger update failed for %s/%s/%s: %v", req.Token, req.Meal, date, err)
			return unavailable(), nil
		}
		return Outcome{Granted: true, Reason: ReasonGranted, Message: "meal verified"}, nil
	}

	return Outcome{}, errors.New("corrupt ledger record: status " + string(rec.Status))
}

func (e *Engine) finish(req Request, at time.Time, out Outcome) Outcome {
	if e.audit != nil {
		a := Attempt{Token: req.Token, Meal: req.Meal, Reason: out.Reason, Granted: out.Granted, At: at}
		pctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := e.audit.PublishAttempt(pctx, a); err != nil {
			log.Printf("audit publish failed: %v", err)
		}
	}
	return out
}

func unavailable() Outcome {
	return Outcome{Reason: ReasonUnavailable, Message: "verification unavailable"}
}

// keyMutex stripes locks across a fixed set of mutexes so distinct
// keys rarely contend and same keys always serialize.
type keyMutex struct {
	shards [64]sync.Mutex
}

func (k *keyMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.shards[h.Sum32()%uint32(len(k.shards))]
	m.Lock()
	return m.Unlock
}
