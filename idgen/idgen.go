/*
Package idgen produces human-readable, collision-checked identifiers.

PURPOSE:
  Account numbers, application IDs and transaction IDs are fixed-format
  strings: a prefix, an optional date component and a zero-padded random
  suffix. The generator samples a candidate, asks the caller whether it
  already exists and re-samples on collision.

FORMATS:
  account      "100" + 7 digits                 1004829301
  application  "LA" + yyyy + 6 digits            LA2025004821
  transaction  "TXN" + yyyymmdd + 6 digits       TXN20250310482913

BOUNDED RETRIES:
  Generation gives up after MaxAttempts candidates (default 1000) and
  returns ErrGenerationExhausted. It never loops forever.

CONCURRENCY:
  Safe for concurrent use. The exists-check and the later insert are not
  atomic, so two callers can still pick the same candidate. Storage-level
  UNIQUE constraints catch that; this package only makes it unlikely.

SEE ALSO:
  - ledger/ledger.go: Transaction IDs
  - ledger/accounts.go: Account numbers
  - application/workflow.go: Application IDs
*/
package idgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// DefaultMaxAttempts caps candidate sampling per Generate call.
const DefaultMaxAttempts = 1000

// Kind names a built-in identifier format.
type Kind string

const (
	KindAccount     Kind = "account"
	KindApplication Kind = "application"
	KindTransaction Kind = "transaction"
)

// Format describes how a candidate is built.
type Format struct {
	Prefix string
	// DateLayout is a time layout rendered from the generator clock; empty for none.
	DateLayout string
	// Digits is the width of the zero-padded random suffix (1..18).
	Digits int
}

// Validate checks the suffix width.
func (f Format) Validate() error {
	if f.Digits < 1 || f.Digits > 18 {
		return fmt.Errorf("idgen: suffix width %d out of range 1..18", f.Digits)
	}
	return nil
}

// Matches reports whether id has the shape of this format (ignoring the date value).
func (f Format) Matches(id string) bool {
	if !strings.HasPrefix(id, f.Prefix) {
		return false
	}
	rest := id[len(f.Prefix):]
	if len(rest) != len(f.DateLayout)+f.Digits {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DefaultFormats are the built-in formats for each Kind.
func DefaultFormats() map[Kind]Format {
	return map[Kind]Format{
		KindAccount:     {Prefix: "100", Digits: 7},
		KindApplication: {Prefix: "LA", DateLayout: "2006", Digits: 6},
		KindTransaction: {Prefix: "TXN", DateLayout: "20060102", Digits: 6},
	}
}

// ExistsFunc reports whether a candidate is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrGenerationExhausted is returned when every attempted candidate collided.
	ErrGenerationExhausted = errors.New("identifier generation exhausted")

	// ErrUnknownKind is returned for a Kind with no registered format.
	ErrUnknownKind = errors.New("unknown identifier kind")
)

// ExhaustedError carries the format and attempt count of a failed generation.
type ExhaustedError struct {
	Prefix   string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("identifier generation exhausted: prefix %q after %d attempts", e.Prefix, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrGenerationExhausted
}

// =============================================================================
// GENERATOR
// =============================================================================

// Generator samples identifiers. The zero value is not usable; call New.
type Generator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	formats     map[Kind]Format
	maxAttempts int
	now         func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts overrides DefaultMaxAttempts. Values < 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n >= 1 {
			g.maxAttempts = n
		}
	}
}

// WithClock sets the clock used for date components.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSeed makes the random suffix sequence deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithFormat overrides or adds the format for a kind.
func WithFormat(kind Kind, f Format) Option {
	return func(g *Generator) { g.formats[kind] = f }
}

// New creates a generator with the default formats.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		formats:     DefaultFormats(),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Format returns the registered format for kind.
func (g *Generator) Format(kind Kind) (Format, error) {
	f, ok := g.formats[kind]
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return f, nil
}

// MaxAttempts returns the retry cap.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns a candidate of the given kind for which exists reports false.
func (g *Generator) Generate(ctx context.Context, kind Kind, exists ExistsFunc) (string, error) {
	f, err := g.Format(kind)
	if err != nil {
		return "", err
	}
	return g.GenerateFormat(ctx, f, exists)
}

// GenerateFormat is Generate for an ad-hoc format.
// A nil exists func accepts the first candidate.
func (g *Generator) GenerateFormat(ctx context.Context, f Format, exists ExistsFunc) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.Candidate(f)
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", &ExhaustedError{Prefix: f.Prefix, Attempts: g.maxAttempts}
}

// Candidate builds one random candidate without any uniqueness check.
func (g *Generator) Candidate(f Format) string {
	var sb strings.Builder
	sb.WriteString(f.Prefix)
	if f.DateLayout != "" {
		sb.WriteString(g.now().Format(f.DateLayout))
	}

	g.mu.Lock()
	n := g.rng.Uint64N(pow10(f.Digits))
	g.mu.Unlock()

	sb.WriteString(fmt.Sprintf("%0*d", f.Digits, n))
	return sb.String()
}

func pow10(n int) uint64 {
	p := uint64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
