package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"companion-agent/internal/domain"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultStaleAfter  = 5 * time.Minute
)

// ErrNoProviders is returned when neither provider passes the availability
// check; no network call is attempted in that case.
var ErrNoProviders = errors.New("llm: no chat provider is available")

// ApologyMessage replaces the answer when a fallback network attempt itself
// fails. The conversation is never dead-ended with a transport error; the
// classified failure goes to the log instead.
const ApologyMessage = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// Result is a successful (possibly degraded) chat outcome.
type Result struct {
	Text     string
	Provider domain.ProviderTag
	Fallback bool
	// Degraded marks the apology path: the fallback attempt failed and the
	// text is a canned message rather than model output.
	Degraded bool
}

// snapshot is the immutable provider-state value swapped atomically on every
// refresh. Concurrent writers race benignly; last writer wins.
type snapshot struct {
	active             domain.ProviderTag
	primaryAvailable   bool
	secondaryAvailable bool
	checkedAt          time.Time
}

// Orchestrator drives the primary-then-fallback attempt sequence and tracks
// the process-wide provider state.
type Orchestrator struct {
	primary     Client
	fallback    Client
	creds       Credentials
	callTimeout time.Duration
	staleAfter  time.Duration
	logger      *zap.Logger
	now         func() time.Time

	state atomic.Pointer[snapshot]
}

type Option func(*Orchestrator)

// WithCallTimeout bounds each provider network call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithStaleAfter overrides the status staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires both clients and seeds the provider snapshot from an
// initial availability check.
func NewOrchestrator(primary, fallback Client, creds Credentials, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if primary == nil {
		return nil, errors.New("llm: primary client must not be nil")
	}
	if fallback == nil {
		return nil, errors.New("llm: fallback client must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		primary:     primary,
		fallback:    fallback,
		creds:       creds,
		callTimeout: defaultCallTimeout,
		staleAfter:  defaultStaleAfter,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.Refresh()
	return o, nil
}

// Chat runs the full failover sequence for one request. The availability of
// both providers is re-derived from scratch; no previous outcome is
// terminal.
func (o *Orchestrator) Chat(ctx context.Context, system string, transcript []domain.ChatTurn) (Result, error) {
	primaryOK := o.creds.PrimaryAvailable()
	secondaryOK := o.creds.SecondaryAvailable()

	if !primaryOK && !secondaryOK {
		o.store(domain.ProviderNone, primaryOK, secondaryOK)
		return Result{}, ErrNoProviders
	}

	if primaryOK {
		text, err := o.call(ctx, o.primary, system, transcript)
		if err == nil {
			o.store(domain.ProviderPrimary, primaryOK, secondaryOK)
			return Result{Text: text, Provider: domain.ProviderPrimary}, nil
		}
		o.logger.Warn("primary provider failed",
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		if !secondaryOK {
			o.store(domain.ProviderNone, primaryOK, secondaryOK)
			return Result{}, err
		}
	}

	text, err := o.call(ctx, o.fallback, system, transcript)
	if err == nil {
		o.store(domain.ProviderFallback, primaryOK, secondaryOK)
		return Result{Text: text, Provider: domain.ProviderFallback, Fallback: true}, nil
	}

	// Deliberate policy: an attempted fallback that throws is downgraded to
	// a canned apology so the conversation continues. The classified error
	// is preserved here for operators.
	o.logger.Error("fallback provider failed, returning apology",
		zap.String("kind", string(KindOf(err))),
		zap.Error(err),
	)
	o.store(domain.ProviderNone, primaryOK, secondaryOK)
	return Result{
		Text:     ApologyMessage,
		Provider: domain.ProviderFallback,
		Fallback: true,
		Degraded: true,
	}, nil
}

func (o *Orchestrator) call(ctx context.Context, c Client, system string, transcript []domain.ChatTurn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return c.Chat(ctx, system, transcript)
}

// Status reports the current snapshot. A snapshot older than the staleness
// threshold triggers a background re-check; the stale value is still
// returned so the endpoint never blocks on it.
func (o *Orchestrator) Status() domain.ProviderStatus {
	snap := o.state.Load()
	if o.now().Sub(snap.checkedAt) > o.staleAfter {
		go o.Refresh()
	}
	return domain.ProviderStatus{
		ActiveProvider:     snap.active,
		PrimaryAvailable:   snap.primaryAvailable,
		SecondaryAvailable: snap.secondaryAvailable,
		LastCheckedAt:      snap.checkedAt,
	}
}

// Refresh re-runs the availability checks and swaps in a new snapshot. The
// active provider is preserved unless both providers are unusable.
func (o *Orchestrator) Refresh() domain.ProviderStatus {
	primaryOK := o.creds.PrimaryAvailable()
	secondaryOK := o.creds.SecondaryAvailable()

	active := domain.ProviderNone
	if prev := o.state.Load(); prev != nil {
		active = prev.active
	}
	if !primaryOK && !secondaryOK {
		active = domain.ProviderNone
	}
	o.store(active, primaryOK, secondaryOK)

	snap := o.state.Load()
	return domain.ProviderStatus{
		ActiveProvider:     snap.active,
		PrimaryAvailable:   snap.primaryAvailable,
		SecondaryAvailable: snap.secondaryAvailable,
		LastCheckedAt:      snap.checkedAt,
	}
}

func (o *Orchestrator) store(active domain.ProviderTag, primaryOK, secondaryOK bool) {
	o.state.Store(&snapshot{
		active:             active,
		primaryAvailable:   primaryOK,
		secondaryAvailable: secondaryOK,
		checkedAt:          o.now(),
	})
}
