// Package session provides the Session Engine (C7): the state machine that
// drives a Plan's enabled items through the Measurement Dispatcher in order,
// one session at a time per instrument set, and reports progress. Spec §4.7.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webpdtool/testcore/internal/measurement"
	"github.com/webpdtool/testcore/internal/resolver"
	"github.com/webpdtool/testcore/internal/template"
	"github.com/webpdtool/testcore/internal/testplan"
)

// State is a Session's lifecycle state (spec §3 Session, §4.7).
type State string

// State enum values.
const (
	StatePending    State = "PENDING"
	StateRunning    State = "RUNNING"
	StateFinalizing State = "FINALIZING"
	StateCompleted  State = "COMPLETED"
	StateAborted    State = "ABORTED"
	StateFailed     State = "FAILED"
)

// IsTerminal reports whether s has no further transitions (spec §4.7:
// terminal states are immutable, mirroring the invariant the Dispatcher's
// upstream event lifecycle already enforces elsewhere in this codebase).
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Sentinel errors.
var (
	// ErrInvalidTransition is returned when a requested transition is not
	// one of PENDING->RUNNING, RUNNING->FINALIZING, FINALIZING->COMPLETED,
	// PENDING/RUNNING/FINALIZING->ABORTED|FAILED.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrAlreadyRunning is returned by Start on a session not in PENDING.
	ErrAlreadyRunning = errors.New("session already started")
)

// abortGracePeriod bounds how long Abort waits for the in-flight item to
// finish naturally before the session moves to ABORTED regardless (spec
// §4.7 cancellation semantics).
const abortGracePeriod = 10 * time.Second

// progressBufferSize bounds the session's progress channel; once full,
// the oldest unread event is dropped rather than blocking the item loop
// (spec §4.7: progress reporting must never slow down execution).
const progressBufferSize = 64

// ProgressEvent is emitted as each item starts and finishes.
type ProgressEvent struct {
	SessionID string
	ItemNo    int
	ItemName  string
	State     State
	Result    *testplan.MeasurementResult
	Timestamp time.Time
}

// ProgressPublisher is an optional best-effort sink for ProgressEvents
// (spec §9 domain-stack: wired to a Kafka publisher in production, a no-op
// in tests). Publish must not block the session loop.
type ProgressPublisher interface {
	Publish(event ProgressEvent)
}

// ResultAppender is the subset of the Result Store (C8) the engine needs to
// persist each item's outcome exactly once (spec §3 invariant 4).
type ResultAppender interface {
	Append(ctx context.Context, sessionID string, result testplan.MeasurementResult) error
}

// Recorder persists a session's lifecycle row (spec §9 domain stack:
// test_sessions table), independent of the per-item Result Store. Optional —
// a nil Recorder simply means the session is never durably tracked.
type Recorder interface {
	// Create inserts the session's initial PENDING row.
	Create(ctx context.Context, id, project, station, planName string) error
	// Transition updates the session's row to reflect a new state, recording
	// reportPath when the session reaches a terminal state with a written
	// report.
	Transition(ctx context.Context, id string, state State, reportPath string) error
}

// ContinuePolicy decides whether the loop proceeds to the next item after a
// non-PASS outcome (spec §4.7 continue-on-failure policy).
type ContinuePolicy func(result testplan.MeasurementResult) bool

// ContinueOnFailure is the default ContinuePolicy: the loop always proceeds,
// matching the teacher-domain's "continue rather than abort on a single
// probe failure" stance.
func ContinueOnFailure(testplan.MeasurementResult) bool { return true }

// StopOnFailure proceeds only past PASS/SKIP outcomes.
func StopOnFailure(result testplan.MeasurementResult) bool {
	return result.Outcome == testplan.OutcomePass || result.Outcome == testplan.OutcomeSkip
}

// Session drives one Plan execution through its lifecycle. One Session
// handles at most one plan run; callers create a new Session per run.
type Session struct {
	ID   string
	Plan testplan.Plan

	dispatcher *measurement.Dispatcher
	catalog    *template.Catalog
	deps       measurement.Deps
	appender   ResultAppender
	publisher  ProgressPublisher
	recorder   Recorder
	prior      *inMemoryPriorResults
	policy     ContinuePolicy
	logger     *slog.Logger

	mu    sync.Mutex
	state State

	progress chan ProgressEvent

	cancel context.CancelFunc
}

// New constructs a Session for plan, ready to Start.
func New(
	plan testplan.Plan,
	dispatcher *measurement.Dispatcher,
	catalog *template.Catalog,
	deps measurement.Deps,
	appender ResultAppender,
	publisher ProgressPublisher,
	recorder Recorder,
	policy ContinuePolicy,
) *Session {
	if policy == nil {
		policy = ContinueOnFailure
	}

	return &Session{
		ID:         uuid.NewString(),
		Plan:       plan,
		dispatcher: dispatcher,
		catalog:    catalog,
		deps:       deps,
		appender:   appender,
		publisher:  publisher,
		recorder:   recorder,
		prior:      newInMemoryPriorResults(),
		policy:     policy,
		logger:     slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		state:      StatePending,
		progress:   make(chan ProgressEvent, progressBufferSize),
	}
}

// Progress returns the channel ProgressEvents are emitted on. Callers that
// don't drain it simply miss events once the buffer fills; they never block
// the session.
func (s *Session) Progress() <-chan ProgressEvent {
	return s.progress
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal, cannot move to %s", ErrInvalidTransition, s.state, to)
	}

	valid := map[State][]State{
		StatePending:    {StateRunning, StateFailed, StateAborted},
		StateRunning:    {StateFinalizing, StateAborted, StateFailed},
		StateFinalizing: {StateCompleted, StateAborted, StateFailed},
	}

	for _, ok := range valid[s.state] {
		if ok == to {
			s.state = to

			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
}

// Start runs the plan's enabled items in order until the list is exhausted,
// the session is aborted, or ctx is cancelled. It blocks until the session
// reaches a terminal state.
func (s *Session) Start(ctx context.Context) error {
	if err := s.transition(StateRunning); err != nil {
		return fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	defer cancel()

	if s.recorder != nil {
		if err := s.recorder.Create(runCtx, s.ID, s.Plan.Project, s.Plan.Station, s.Plan.Name); err != nil {
			s.logger.Error("session record create failed", slog.String("session_id", s.ID), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("session started", slog.String("session_id", s.ID), slog.String("plan", s.Plan.Name))

	items := s.Plan.EnabledItems()

	for _, item := range items {
		if runCtx.Err() != nil {
			return s.finishAborted()
		}

		s.emit(ProgressEvent{SessionID: s.ID, ItemNo: item.ItemNo, ItemName: item.ItemName, State: StateRunning, Timestamp: time.Now()})

		result := s.runItem(runCtx, item)

		s.prior.record(item, result)

		// The item's result is recorded even when runCtx was cancelled by Abort.
		if err := s.appender.Append(context.WithoutCancel(runCtx), s.ID, result); err != nil {
			return s.finishFailed(fmt.Errorf("item %d (%s): result store append failed: %w", item.ItemNo, item.ItemName, err))
		}

		resultCopy := result
		s.emit(ProgressEvent{SessionID: s.ID, ItemNo: item.ItemNo, ItemName: item.ItemName, State: StateRunning, Result: &resultCopy, Timestamp: time.Now()})

		if !s.policy(result) {
			return s.finishFailed(fmt.Errorf("item %d (%s) stopped the session: %s", item.ItemNo, item.ItemName, result.Outcome))
		}
	}

	if runCtx.Err() != nil {
		return s.finishAborted()
	}

	return s.finishCompleted()
}

// runItem resolves item's parameters and dispatches it, converting a
// Resolver error into an ERROR MeasurementResult so the loop never aborts
// on a resolution failure alone (spec §4.6/§4.7 boundary).
func (s *Session) runItem(ctx context.Context, item testplan.TestItem) testplan.MeasurementResult {
	start := time.Now()

	params, err := s.resolveParams(item)
	if err != nil {
		return testplan.MeasurementResult{
			ItemNo: item.ItemNo, ItemName: item.ItemName,
			Outcome: testplan.OutcomeError, ErrorMessage: err.Error(), IsNull: true,
			ExecutionMs: time.Since(start).Milliseconds(), Timestamp: time.Now(),
		}
	}

	return s.dispatcher.Dispatch(ctx, item, params, s.deps)
}

func (s *Session) resolveParams(item testplan.TestItem) (map[string]interface{}, error) {
	return resolver.Resolve(item, s.catalog, s.prior)
}

// Abort requests the session stop after its currently in-flight item, or
// within abortGracePeriod if that item doesn't respond to cancellation
// (spec §4.7).
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	time.AfterFunc(abortGracePeriod, func() {
		_ = s.transition(StateAborted)
	})
}

func (s *Session) finishCompleted() error {
	if err := s.transition(StateFinalizing); err != nil {
		return err
	}

	if err := s.transition(StateCompleted); err != nil {
		return err
	}

	s.recordTransition(StateCompleted)

	s.logger.Info("session completed", slog.String("session_id", s.ID))

	return nil
}

func (s *Session) finishAborted() error {
	_ = s.transition(StateAborted)

	s.recordTransition(StateAborted)

	s.logger.Info("session aborted", slog.String("session_id", s.ID))

	return nil
}

func (s *Session) finishFailed(cause error) error {
	_ = s.transition(StateFailed)

	s.recordTransition(StateFailed)

	s.logger.Error("session failed", slog.String("session_id", s.ID), slog.String("error", cause.Error()))

	return cause
}

// recordTransition persists a terminal-state transition. Best-effort: a
// failure here never affects the session's outcome, only its durable audit
// trail.
func (s *Session) recordTransition(state State) {
	if s.recorder == nil {
		return
	}

	if err := s.recorder.Transition(context.Background(), s.ID, state, ""); err != nil {
		s.logger.Error("session record transition failed",
			slog.String("session_id", s.ID), slog.String("state", string(state)), slog.String("error", err.Error()))
	}
}

func (s *Session) emit(event ProgressEvent) {
	select {
	case s.progress <- event:
	default:
		<-s.progress
		s.progress <- event
	}

	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}
