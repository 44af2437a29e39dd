package geo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	"voice-geo-go/internal/config"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/metrics"
	"voice-geo-go/internal/types"
)

// State is where a candidate ended up.
type State string

const (
	StateSkipped  State = "skipped"
	StateAccepted State = "accepted"
	StateRejected State = "rejected_by_filter"
	StateFailed   State = "terminal_failure"
)

// Outcome records what happened to one input entity.
type Outcome struct {
	Entity   types.Entity
	State    State
	Reason   string
	Attempts int
	Err      error
}

// Resolution is the result of one Resolve call.
type Resolution struct {
	Locations types.ResolvedLocationSet
	Outcomes  []Outcome
}

// Resolver turns entities into ranked coordinates. Its fields are read-only
// after New, so a single Resolver serves concurrent requests.
type Resolver struct {
	provider    Provider
	policy      config.Policy
	baseDelay   time.Duration
	minInterval time.Duration
	clock       Clock
	log         *logger.Logger
	metrics     *metrics.Metrics

	stoplist      map[string]struct{}
	excludedTypes map[string]struct{}
}

type Option func(*Resolver)

func WithClock(c Clock) Option { return func(r *Resolver) { r.clock = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Resolver) { r.metrics = m } }

func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l.Component("geo-resolver") }
}

// WithTiming sets the retry base delay and the minimum gap between lookups.
func WithTiming(baseDelay, minInterval time.Duration) Option {
	return func(r *Resolver) {
		r.baseDelay = baseDelay
		r.minInterval = minInterval
	}
}

func NewResolver(p Provider, policy config.Policy, opts ...Option) *Resolver {
	r := &Resolver{
		provider:    p,
		policy:      policy,
		baseDelay:   time.Second,
		minInterval: time.Second,
		clock:       SystemClock{},
		log:         logger.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.policy.MaxAttempts < 1 {
		r.policy.MaxAttempts = 3
	}
	if r.policy.MaxResults < 1 {
		r.policy.MaxResults = 10
	}

	fold := cases.Fold()
	r.stoplist = make(map[string]struct{}, len(policy.Stoplist))
	for _, s := range policy.Stoplist {
		r.stoplist[normalizeKey(fold, s)] = struct{}{}
	}
	r.excludedTypes = make(map[string]struct{}, len(policy.ExcludedPlaceTypes))
	for _, t := range policy.ExcludedPlaceTypes {
		r.excludedTypes[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return r
}

// Resolve never fails. Per-candidate problems land in Outcomes. The request
// context is only consulted between candidates; an attempt already in flight,
// and its retries, run to completion.
func (r *Resolver) Resolve(ctx context.Context, entities []types.Entity) Resolution {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(entities))
	limiter := rate.NewLimiter(rate.Every(r.minInterval), 1)
	callCtx := context.WithoutCancel(ctx)

	res := Resolution{Outcomes: make([]Outcome, 0, len(entities))}
	accepted := make(types.ResolvedLocationSet, 0, len(entities))

	for i, e := range entities {
		if ctx.Err() != nil {
			for _, rest := range entities[i:] {
				res.Outcomes = append(res.Outcomes, r.record(Outcome{Entity: rest, State: StateSkipped, Reason: ReasonCancelled}))
			}
			break
		}
		if !e.Kind.IsGeographic() {
			res.Outcomes = append(res.Outcomes, r.record(Outcome{Entity: e, State: StateSkipped, Reason: ReasonType}))
			continue
		}
		key := normalizeKey(fold, e.Text)
		if _, dup := seen[key]; dup {
			res.Outcomes = append(res.Outcomes, r.record(Outcome{Entity: e, State: StateSkipped, Reason: ReasonDuplicate}))
			continue
		}
		seen[key] = struct{}{}
		if reason := exclusion(key, r.stoplist); reason != "" {
			res.Outcomes = append(res.Outcomes, r.record(Outcome{Entity: e, State: StateSkipped, Reason: reason}))
			continue
		}

		match, attempts, err := r.lookup(callCtx, strings.TrimSpace(e.Text), limiter)
		out := Outcome{Entity: e, Attempts: attempts, Err: err}
		switch {
		case err != nil:
			out.State = StateFailed
			out.Reason = resultLabel(err)
		case r.excluded(match.PlaceType):
			out.State = StateRejected
			out.Reason = "place_type:" + match.PlaceType
		case match.Importance <= r.policy.ImportanceThreshold:
			out.State = StateRejected
			out.Reason = "importance"
		default:
			out.State = StateAccepted
			accepted = append(accepted, types.LocationCandidate{
				Location:   strings.TrimSpace(e.Text),
				Latitude:   match.Latitude,
				Longitude:  match.Longitude,
				Type:       match.PlaceType,
				Importance: clamp01(match.Importance),
			})
		}
		res.Outcomes = append(res.Outcomes, r.record(out))
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Importance > accepted[j].Importance
	})
	if len(accepted) > r.policy.MaxResults {
		accepted = accepted[:r.policy.MaxResults]
	}
	res.Locations = accepted

	r.log.WithField("entities", len(entities)).
		WithField("locations", len(accepted)).
		Info("resolution finished")
	return res
}

func (r *Resolver) lookup(ctx context.Context, query string, limiter *rate.Limiter) (Match, int, error) {
	var (
		match    Match
		attempts int
	)
	op := func() error {
		r.throttle(limiter)
		attempts++
		m, err := r.provider.Lookup(ctx, query)
		r.metrics.Attempt(resultLabel(err))
		if err == nil {
			match = m
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		r.log.WithField("query", query).
			WithField("attempt", attempts).
			WithField("wait", wait.String()).
			WithError(err).
			Debug("transient geocoder failure, retrying")
	}
	err := backoff.RetryNotifyWithTimer(op, retryPolicy(r.baseDelay, r.policy.MaxAttempts), notify, r.clock.NewTimer())
	if err != nil {
		return Match{}, attempts, err
	}
	return match, attempts, nil
}

// throttle blocks until the limiter grants the next lookup slot.
func (r *Resolver) throttle(l *rate.Limiter) {
	now := r.clock.Now()
	if d := l.ReserveN(now, 1).DelayFrom(now); d > 0 {
		r.clock.Sleep(d)
	}
}

func (r *Resolver) excluded(placeType string) bool {
	_, ok := r.excludedTypes[strings.ToLower(placeType)]
	return ok
}

func (r *Resolver) record(o Outcome) Outcome {
	r.metrics.Candidate(string(o.State), o.Reason)
	entry := r.log.WithField("entity", o.Entity.Text).
		WithField("state", string(o.State)).
		WithField("reason", o.Reason)
	if o.Attempts > 0 {
		entry = entry.WithField("attempts", o.Attempts)
	}
	switch {
	case o.State == StateFailed && IsTransient(o.Err):
		entry.WithError(o.Err).Warn("candidate dropped after retries")
	case o.State == StateFailed && !errors.Is(o.Err, ErrNotFound):
		entry.WithError(o.Err).Warn("candidate failed")
	default:
		entry.Debug("candidate resolved")
	}
	return o
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
