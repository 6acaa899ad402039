// Package runner orchestrates one processing cycle of the job queue:
// claim a job under lease, validate it, call the upstream behind the circuit
// breaker, classify the outcome and write the next queue state. Every failure
// class is converted into a queue update; only a queue-store failure escapes
// to the invoking scheduler.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketpulse/apps/worker/features/queue"
	"marketpulse/apps/worker/internal/backoff"
	"marketpulse/apps/worker/internal/breaker"
	"marketpulse/apps/worker/internal/jobctx"
	"marketpulse/apps/worker/internal/notify"
	"marketpulse/apps/worker/internal/upstream"
)

const (
	DefaultLeaseSeconds = 120
	DefaultMaxAttempts  = 6
	DefaultDeadTopic    = notify.TopicJobsDead
)

// Handler binds a job type to its upstream operation. Handlers are
// registered data, not switch arms; the runner stays ignorant of marketplace
// protocols.
type Handler struct {
	// BuildRequest validates the payload and shapes the upstream call.
	// An error here is a validation failure: immediately terminal, never
	// retried, because a malformed payload will not heal on resubmission.
	BuildRequest func(payload json.RawMessage) (upstream.Request, error)
	// OnResult persists the domain-side record of a successful call.
	// Optional.
	OnResult func(ctx context.Context, j *queue.Job, result json.RawMessage) error
	// OnFailure records the domain-side trace of a failed call. Optional.
	OnFailure func(ctx context.Context, j *queue.Job, out upstream.Outcome)
	// Success and Dead are this job family's terminal statuses
	// ("done"/"dead" for search, "published"/"failed" for publish).
	Success string
	Dead    string
}

func (h Handler) successStatus() string {
	if h.Success == "" {
		return queue.StatusDone
	}
	return h.Success
}

func (h Handler) deadStatus() string {
	if h.Dead == "" {
		return queue.StatusDead
	}
	return h.Dead
}

// Publisher emits dead-letter events for downstream alerting. *nsq.Producer
// satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Config tunes one worker's runner.
type Config struct {
	WorkerID     string
	JobType      string
	LeaseSeconds int
	MaxAttempts  int
	// DenialBudget caps attempts for access-denial failures. It shares the
	// attempts counter but has its own, smaller ceiling.
	DenialBudget int
	DeadTopic    string
}

func (c *Config) normalize() {
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = DefaultLeaseSeconds
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DenialBudget <= 0 {
		c.DenialBudget = backoff.DefaultDenialBudget
	}
	if c.DeadTopic == "" {
		c.DeadTopic = DefaultDeadTopic
	}
}

// Result summarizes one RunOnce cycle.
type Result struct {
	Claimed bool
	JobID   int64
	Status  string
	Class   ErrorClass
}

// Runner owns one job type's processing loop within a worker process.
type Runner struct {
	store    queue.Store
	client   upstream.Client
	breaker  *breaker.Breaker
	policy   *backoff.Policy
	fastFail *backoff.FastFail
	pub      Publisher
	cfg      Config

	handlers map[string]Handler
	now      func() time.Time
}

func New(store queue.Store, client upstream.Client, b *breaker.Breaker, policy *backoff.Policy, fastFail *backoff.FastFail, cfg Config) *Runner {
	cfg.normalize()
	if policy == nil {
		policy = backoff.Default()
	}
	if fastFail == nil {
		fastFail = backoff.NewFastFail(cfg.DenialBudget, backoff.DefaultDenialDelay, time.Second, time.Now().UnixNano())
	}
	return &Runner{
		store:    store,
		client:   client,
		breaker:  b,
		policy:   policy,
		fastFail: fastFail,
		cfg:      cfg,
		handlers: map[string]Handler{},
		now:      time.Now,
	}
}

// Register binds a handler to a job type. Jobs of unregistered types are
// treated as validation failures.
func (r *Runner) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// WithPublisher attaches the dead-letter publisher.
func (r *Runner) WithPublisher(p Publisher) *Runner {
	r.pub = p
	return r
}

// SetClock overrides the runner's clock. Test hook.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// RunOnce processes at most one job. A nil claim is a no-op result. The
// returned error is non-nil only when the queue store itself failed, which
// is fatal to the cycle and must surface to the scheduler.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	ctx = jobctx.WithWorkerID(ctx, r.cfg.WorkerID)
	ctx = jobctx.WithCorrelationID(ctx, uuid.NewString())

	j, err := r.store.DequeueAndLock(ctx, r.cfg.JobType, r.cfg.WorkerID, r.cfg.LeaseSeconds)
	if err != nil {
		return Result{}, fmt.Errorf("dequeue: %w", err)
	}
	if j == nil {
		slog.DebugContext(ctx, "no eligible jobs")
		return Result{}, nil
	}

	ctx = jobctx.WithJobID(ctx, j.ID)
	slog.InfoContext(ctx, "job claimed", "job_type", j.Type, "attempts", j.Attempts)

	h, ok := r.handlers[j.Type]
	if !ok {
		return r.failTerminal(ctx, j, Handler{}, &queue.JobError{
			Class: ClassValidation.String(),
			Msg:   fmt.Sprintf("no handler registered for job type %q", j.Type),
		})
	}

	req, err := h.BuildRequest(j.Payload)
	if err != nil {
		slog.ErrorContext(ctx, "payload validation failed", "error", err)
		return r.failTerminal(ctx, j, h, &queue.JobError{
			Class: ClassValidation.String(),
			Msg:   err.Error(),
		})
	}

	if !r.breaker.CanExecute() {
		slog.WarnContext(ctx, "circuit breaker open, skipping upstream call")
		out := upstream.Outcome{}
		if h.OnFailure != nil {
			h.OnFailure(ctx, j, out)
		}
		return r.failRetryable(ctx, j, h, ClassUnavailable, out, nil)
	}

	out, callErr := r.client.Call(ctx, req)

	if callErr == nil && out.OK {
		r.breaker.RecordSuccess()
		return r.succeed(ctx, j, h, out)
	}

	r.breaker.RecordFailure()
	class := Classify(out, callErr)
	slog.WarnContext(ctx, "upstream call failed",
		"class", class.String(), "http_status", out.HTTPStatus, "error", callErr)

	if h.OnFailure != nil {
		h.OnFailure(ctx, j, out)
	}
	return r.failRetryable(ctx, j, h, class, out, callErr)
}

func (r *Runner) succeed(ctx context.Context, j *queue.Job, h Handler, out upstream.Outcome) (Result, error) {
	if err := r.store.RecordResult(ctx, j.ID, out.ResultBody); err != nil {
		// The lease stays held; expiry makes the job reclaimable.
		return Result{}, fmt.Errorf("record result: %w", err)
	}
	if h.OnResult != nil {
		if err := h.OnResult(ctx, j, out.ResultBody); err != nil {
			return Result{}, fmt.Errorf("handle result: %w", err)
		}
	}

	status := h.successStatus()
	if err := r.store.UpdateJob(ctx, queue.JobUpdate{
		JobID:    j.ID,
		Status:   status,
		Unlock:   true,
		Attempts: j.Attempts + 1,
	}); err != nil {
		return Result{}, fmt.Errorf("update job: %w", err)
	}

	slog.InfoContext(ctx, "job completed", "status", status, "attempts", j.Attempts+1)
	return Result{Claimed: true, JobID: j.ID, Status: status}, nil
}

// failTerminal writes an immediately terminal failure: validation errors and
// exhausted budgets land here.
func (r *Runner) failTerminal(ctx context.Context, j *queue.Job, h Handler, jobErr *queue.JobError) (Result, error) {
	status := h.deadStatus()
	if err := r.store.UpdateJob(ctx, queue.JobUpdate{
		JobID:     j.ID,
		Status:    status,
		Unlock:    true,
		Attempts:  j.Attempts + 1,
		LastError: jobErr,
	}); err != nil {
		return Result{}, fmt.Errorf("update job: %w", err)
	}

	slog.ErrorContext(ctx, "job dead", "status", status, "attempts", j.Attempts+1, "class", jobErr.Class)
	r.publishDead(ctx, j, status, jobErr)
	return Result{Claimed: true, JobID: j.ID, Status: status, Class: classFromString(jobErr.Class)}, nil
}

func (r *Runner) failRetryable(ctx context.Context, j *queue.Job, h Handler, class ErrorClass, out upstream.Outcome, callErr error) (Result, error) {
	jobErr := &queue.JobError{
		Class:      class.String(),
		Msg:        failureMessage(class, out, callErr),
		HTTPStatus: out.HTTPStatus,
	}
	if out.ErrorBody != nil {
		jobErr.Msg = string(out.ErrorBody)
	}

	attempts := j.Attempts + 1
	maxAttempts := r.cfg.MaxAttempts
	if j.MaxAttempts > 0 && j.MaxAttempts < maxAttempts {
		maxAttempts = j.MaxAttempts
	}

	exhausted := attempts >= maxAttempts
	if class == ClassAccessDenied {
		// Denial does not self-heal with time; its ceiling is smaller.
		exhausted = exhausted || r.fastFail.Exhausted(attempts)
	}
	if exhausted {
		return r.failTerminal(ctx, j, h, jobErr)
	}

	var delay time.Duration
	switch class {
	case ClassAccessDenied:
		delay = r.fastFail.Next()
	case ClassRateLimit:
		delay = r.policy.DelayWithHint(j.Attempts, out.RetryAfter)
	default:
		delay = r.policy.Delay(j.Attempts)
	}
	notBefore := r.now().UTC().Add(delay)

	if err := r.store.UpdateJob(ctx, queue.JobUpdate{
		JobID:     j.ID,
		Status:    queue.StatusRetry,
		Unlock:    true,
		Attempts:  attempts,
		NotBefore: &notBefore,
		LastError: jobErr,
	}); err != nil {
		return Result{}, fmt.Errorf("update job: %w", err)
	}

	slog.WarnContext(ctx, "job scheduled for retry",
		"class", class.String(), "attempts", attempts, "not_before", notBefore)
	return Result{Claimed: true, JobID: j.ID, Status: queue.StatusRetry, Class: class}, nil
}

func (r *Runner) publishDead(ctx context.Context, j *queue.Job, status string, jobErr *queue.JobError) {
	if r.pub == nil {
		return
	}
	body, err := json.Marshal(notify.Event{
		JobID:         j.ID,
		JobType:       j.Type,
		Status:        status,
		Attempts:      j.Attempts + 1,
		LastError:     jobErr.JSON(),
		WorkerID:      r.cfg.WorkerID,
		CorrelationID: jobctx.CorrelationID(ctx),
		DeadAt:        r.now().UTC(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "marshal dead-letter event failed", "error", err)
		return
	}
	if err := r.pub.Publish(r.cfg.DeadTopic, body); err != nil {
		// Alerting is best effort; the queue row already carries the state.
		slog.WarnContext(ctx, "dead-letter publish failed", "error", err)
	}
}

func failureMessage(class ErrorClass, out upstream.Outcome, callErr error) string {
	switch class {
	case ClassUnavailable:
		return "circuit breaker open - upstream unavailable"
	case ClassTransport:
		if callErr != nil {
			return callErr.Error()
		}
		return "transport failure"
	default:
		return fmt.Sprintf("upstream returned status %d", out.HTTPStatus)
	}
}
