package audit

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/admin-authz/internal/authz"
	"github.com/jwalitptl/admin-authz/internal/model"
	"github.com/jwalitptl/admin-authz/internal/repository"
	apperrors "github.com/jwalitptl/admin-authz/pkg/errors"
	"github.com/jwalitptl/admin-authz/pkg/logger"
	"github.com/jwalitptl/admin-authz/pkg/messaging"
	"github.com/jwalitptl/admin-authz/pkg/metrics"
)

type Config struct {
	// WriteTimeout bounds each append and each outbox enqueue.
	WriteTimeout time.Duration
	// BreakerFailures consecutive append failures open the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
	PublishChannel  string
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:    5 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
		PublishChannel:  messaging.ChannelAuditEntries,
	}
}

// Entry is the caller-supplied part of an audit record. Snapshots are
// serialized to JSON as-is.
type Entry struct {
	Principal  model.Principal
	Action     string
	EntityName string
	EntityID   *int64
	OldValues  interface{}
	NewValues  interface{}
	IPAddress  string
	Outcome    model.AuditOutcome
}

// Recorder appends audit entries. A failed append never reaches the caller:
// it is logged on the audit_ops channel and diverted to the outbox for
// replay.
type Recorder struct {
	repo      repository.AuditRepository
	outbox    repository.AuditOutbox
	publisher messaging.Publisher
	breaker   *gobreaker.CircuitBreaker
	validate  *validator.Validate
	ops       *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Recorder)

// WithPublisher fans appended entries out on cfg.PublishChannel.
func WithPublisher(p messaging.Publisher) Option {
	return func(r *Recorder) {
		r.publisher = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(
	repo repository.AuditRepository,
	outbox repository.AuditOutbox,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
	opts ...Option,
) *Recorder {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}
	if cfg.PublishChannel == "" {
		cfg.PublishChannel = def.PublishChannel
	}
	if m == nil {
		m = metrics.NewNop()
	}

	ops := log.Channel(logger.ChannelAuditOps)
	r := &Recorder{
		repo:     repo,
		outbox:   outbox,
		validate: validator.New(),
		ops:      ops,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ops.Warn("audit store breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record builds and appends one entry. It returns an error only when the
// entry is invalid or could be neither appended nor enqueued; callers on
// the request path log and drop it.
func (r *Recorder) Record(ctx context.Context, in Entry) error {
	entry, err := r.build(in)
	if err != nil {
		r.ops.WithContext(ctx).Error(err, "invalid audit entry", "entry", in)
		return apperrors.AuditWrite(err)
	}
	return r.write(ctx, entry)
}

// RecordAsync records in the background. Shutdown waits for pending writes.
func (r *Recorder) RecordAsync(ctx context.Context, in Entry) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = r.Record(ctx, in)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_ = r.Record(ctx, in)
	}()
}

// Shutdown stops accepting async writes and waits for in-flight ones.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) build(in Entry) (*model.AuditEntry, error) {
	oldValues, err := model.MarshalJSONB(in.OldValues)
	if err != nil {
		return nil, err
	}
	newValues, err := model.MarshalJSONB(in.NewValues)
	if err != nil {
		return nil, err
	}

	outcome := in.Outcome
	if outcome == "" {
		outcome = model.AuditOutcomeSuccess
	}

	entry := &model.AuditEntry{
		ID:         uuid.NewString(),
		UserID:     in.Principal.UserID,
		Action:     truncate(in.Action, maxLabelLen),
		EntityName: truncate(in.EntityName, maxLabelLen),
		EntityID:   in.EntityID,
		OldValues:  oldValues,
		NewValues:  newValues,
		Timestamp:  r.now().UTC(),
		Outcome:    outcome,
	}
	// an unparseable client address is dropped, the entry is kept
	if ip := in.IPAddress; ip != "" && r.validate.Var(ip, "ip") == nil {
		entry.IPAddress = &ip
	}

	if err := r.validate.Struct(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// maxLabelLen matches the action and entity_name columns.
const maxLabelLen = 64

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (r *Recorder) write(ctx context.Context, entry *model.AuditEntry) error {
	// the entry describes a committed mutation; the request going away
	// must not abort its record
	detached := context.WithoutCancel(ctx)
	log := r.ops.WithContext(ctx)

	appendCtx, cancel := context.WithTimeout(detached, r.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.repo.Append(appendCtx, entry)
	})
	r.metrics.AuditWriteLatency.Observe(time.Since(start).Seconds())
	r.metrics.AuditAppends.WithLabelValues("direct", metrics.Status(err)).Inc()

	if err == nil {
		r.publish(appendCtx, entry)
		return nil
	}

	log.Error(err, "audit append failed",
		"audit_id", entry.ID,
		"user_id", entry.UserID,
		"action", entry.Action,
		"entity_name", entry.EntityName,
	)

	enqueueCtx, cancelEnqueue := context.WithTimeout(detached, r.cfg.WriteTimeout)
	defer cancelEnqueue()

	msg := &model.OutboxMessage{
		Entry:      entry,
		EnqueuedAt: r.now().UTC(),
		LastError:  err.Error(),
	}
	if qErr := r.outbox.Enqueue(enqueueCtx, msg); qErr != nil {
		r.metrics.AuditLost.Inc()
		// last resort: the full entry goes to the ops log
		log.Error(qErr, "audit entry lost", "entry", entry)
		return apperrors.AuditWrite(errors.Join(err, qErr))
	}
	r.metrics.AuditEnqueued.Inc()
	return nil
}

func (r *Recorder) publish(ctx context.Context, entry *model.AuditEntry) {
	if r.publisher == nil {
		return
	}
	err := r.publisher.Publish(ctx, r.cfg.PublishChannel, entry)
	r.metrics.AuditPublished.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		r.ops.WithContext(ctx).Warn("audit fan-out failed", "audit_id", entry.ID, "error", err.Error())
	}
}

// Mutation describes the audited request before the operation runs.
type Mutation struct {
	Principal  model.Principal
	Action     string
	EntityName string
	// EntityID is known up front for updates and deletes.
	EntityID  *int64
	OldValues interface{}
	IPAddress string
}

// Entry turns the mutation into a record with the given outcome.
func (m Mutation) Entry(outcome model.AuditOutcome) Entry {
	return Entry{
		Principal:  m.Principal,
		Action:     m.Action,
		EntityName: m.EntityName,
		EntityID:   m.EntityID,
		OldValues:  m.OldValues,
		IPAddress:  m.IPAddress,
		Outcome:    outcome,
	}
}

// Result is what a committed operation reports back for its audit entry.
type Result struct {
	EntityID  *int64
	OldValues interface{}
	NewValues interface{}
}

// Track runs op and records its outcome once it has settled. An operation
// abandoned because the request was cancelled leaves no entry. Audit
// failures never change the returned error.
func (r *Recorder) Track(ctx context.Context, m Mutation, op func(ctx context.Context) (Result, error)) error {
	res, err := op(ctx)
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)) {
		return err
	}

	in := m.Entry(OutcomeOf(err))
	if res.EntityID != nil {
		in.EntityID = res.EntityID
	}
	if res.OldValues != nil {
		in.OldValues = res.OldValues
	}
	if err == nil {
		in.NewValues = res.NewValues
	}

	_ = r.Record(ctx, in)
	return err
}

// OutcomeOf classifies an operation error. Role and ownership denials are
// "denied"; anything else that failed is "failed".
func OutcomeOf(err error) model.AuditOutcome {
	switch {
	case err == nil:
		return model.AuditOutcomeSuccess
	case errors.Is(err, apperrors.ErrForbiddenKind), errors.Is(err, authz.ErrOwnershipDenied):
		return model.AuditOutcomeDenied
	default:
		return model.AuditOutcomeFailed
	}
}
