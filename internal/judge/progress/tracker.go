// Package progress owns the mutable progress snapshot of one submission.
// All mutation goes through a fixed set of transition operations serialized
// by a single mutex, and every mutating operation re-emits the full snapshot.
package progress

import (
	"context"
	"sync"
	"time"

	"orbitoj/internal/judge/model"
)

// Reporter is the sink every snapshot is emitted to. Implementations must
// not block: Report is invoked synchronously on the judging path.
type Reporter interface {
	Report(ctx context.Context, snapshot *model.ProgressSnapshot)
}

// TestcaseHasher computes identity hashes for testcase positions. It is
// installed by the driver once the submission's judger is resolved; the
// judger alone knows which configuration fields are semantically relevant.
type TestcaseHasher interface {
	SampleTestcaseHash(sample int) (string, error)
	TestcaseHash(subtask, testcase int) (string, error)
}

// SubtaskPlan declares the slot layout of one subtask before running starts.
type SubtaskPlan struct {
	Testcases int
	FullScore float64
}

type slotState int

const (
	slotWaiting slotState = iota
	slotRunning
	slotResolved
	slotSkipped
)

type slot struct {
	state slotState
	hash  string
}

type subtaskState struct {
	score     float64
	fullScore float64
	cases     []slot
}

// Tracker is the progress state machine for one submission. It also holds
// the submission-scoped result cache keyed by testcase identity hash, so a
// single lock covers both the no-op-after-finished check and cache access.
type Tracker struct {
	mu       sync.Mutex
	reporter Reporter
	hasher   TestcaseHasher

	submissionID string
	startedAt    time.Time

	phase    model.ProgressType
	compile  *model.CompileOutcome
	samples  []slot
	subtasks []subtaskState
	results  map[string]*model.TestcaseResult

	status      model.SubmissionStatus
	score       float64
	totalTimeMs int64
	message     string
	sysMessage  string

	finished bool
}

// NewTracker creates a tracker in the Preparing phase and emits the initial
// snapshot.
func NewTracker(ctx context.Context, submissionID string, reporter Reporter) *Tracker {
	t := &Tracker{
		reporter:     reporter,
		submissionID: submissionID,
		startedAt:    time.Now(),
		phase:        model.ProgressPreparing,
		results:      make(map[string]*model.TestcaseResult),
	}
	t.mu.Lock()
	t.emitLocked(ctx)
	t.mu.Unlock()
	return t
}

// SetHasher installs the judger's hashing capability. Must be called before
// any WillEnqueue event.
func (t *Tracker) SetHasher(hasher TestcaseHasher) {
	t.mu.Lock()
	t.hasher = hasher
	t.mu.Unlock()
}

// Compiling enters the Compiling phase.
func (t *Tracker) Compiling(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.phase = model.ProgressCompiling
	t.emitLocked(ctx)
}

// Compiled records the compile outcome. It does not change the phase and
// does not emit; the next emitting event carries the outcome.
func (t *Tracker) Compiled(success bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.compile = &model.CompileOutcome{Success: success, Message: message}
}

// StartedRunning enters the Running phase and allocates all sample and
// testcase slots in the waiting state.
func (t *Tracker) StartedRunning(ctx context.Context, sampleCount int, subtasks []SubtaskPlan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.phase = model.ProgressRunning
	if sampleCount > 0 {
		t.samples = make([]slot, sampleCount)
	}
	if len(subtasks) > 0 {
		t.subtasks = make([]subtaskState, len(subtasks))
		for i, plan := range subtasks {
			t.subtasks[i] = subtaskState{
				fullScore: plan.FullScore,
				cases:     make([]slot, plan.Testcases),
			}
		}
	}
	t.emitLocked(ctx)
}

// SampleWillEnqueue records the sample slot's identity and returns the
// cached result when the same identity has already been computed, signaling
// the judger to skip execution. Inert after Finished.
func (t *Tracker) SampleWillEnqueue(sample int) (*model.TestcaseResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.hasher == nil || sample < 0 || sample >= len(t.samples) {
		return nil, nil
	}
	hash, err := t.hasher.SampleTestcaseHash(sample)
	if err != nil {
		return nil, err
	}
	t.samples[sample].hash = hash
	return t.results[hash], nil
}

// TestcaseWillEnqueue is SampleWillEnqueue for subtask testcase slots.
func (t *Tracker) TestcaseWillEnqueue(subtask, testcase int) (*model.TestcaseResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.hasher == nil || !t.validPosLocked(subtask, testcase) {
		return nil, nil
	}
	hash, err := t.hasher.TestcaseHash(subtask, testcase)
	if err != nil {
		return nil, err
	}
	t.subtasks[subtask].cases[testcase].hash = hash
	return t.results[hash], nil
}

// SampleRunning transitions the sample slot from waiting to running.
func (t *Tracker) SampleRunning(ctx context.Context, sample int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || sample < 0 || sample >= len(t.samples) {
		return
	}
	if t.samples[sample].state == slotWaiting {
		t.samples[sample].state = slotRunning
	}
	t.emitLocked(ctx)
}

// TestcaseRunning transitions the testcase slot from waiting to running.
func (t *Tracker) TestcaseRunning(ctx context.Context, subtask, testcase int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || !t.validPosLocked(subtask, testcase) {
		return
	}
	c := &t.subtasks[subtask].cases[testcase]
	if c.state == slotWaiting {
		c.state = slotRunning
	}
	t.emitLocked(ctx)
}

// SampleFinished resolves the sample slot. A nil result marks it skipped.
func (t *Tracker) SampleFinished(ctx context.Context, sample int, result *model.TestcaseResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || sample < 0 || sample >= len(t.samples) {
		return
	}
	t.resolveSlotLocked(&t.samples[sample], result)
	t.emitLocked(ctx)
}

// TestcaseFinished resolves the testcase slot. A nil result marks it skipped.
func (t *Tracker) TestcaseFinished(ctx context.Context, subtask, testcase int, result *model.TestcaseResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || !t.validPosLocked(subtask, testcase) {
		return
	}
	t.resolveSlotLocked(&t.subtasks[subtask].cases[testcase], result)
	t.emitLocked(ctx)
}

// SubtaskScoreUpdated stores the subtask score, scaling the raw 0-100 value
// by the subtask's full score.
func (t *Tracker) SubtaskScoreUpdated(ctx context.Context, subtask int, rawScore float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || subtask < 0 || subtask >= len(t.subtasks) {
		return
	}
	st := &t.subtasks[subtask]
	st.score = rawScore * st.fullScore / 100
	t.emitLocked(ctx)
}

// Finished is the idempotent terminal transition. The first call records
// status, score and elapsed wall time and emits the final snapshot; every
// later call, with any arguments, is a no-op. This is what keeps
// post-cancellation and post-error events from corrupting a reported result.
func (t *Tracker) Finished(ctx context.Context, status model.SubmissionStatus, score float64) {
	t.FinishedWith(ctx, status, score, "", "")
}

// FinishedWith is Finished carrying a user-facing message and/or a system
// diagnostic message.
func (t *Tracker) FinishedWith(ctx context.Context, status model.SubmissionStatus, score float64, message, systemMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.phase = model.ProgressFinished
	t.status = status
	t.score = score
	t.message = message
	t.sysMessage = systemMessage
	t.totalTimeMs = time.Since(t.startedAt).Milliseconds()
	t.emitLocked(ctx)
}

// IsFinished reports whether the terminal transition has occurred.
func (t *Tracker) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Snapshot returns a copy of the current snapshot.
func (t *Tracker) Snapshot() *model.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) validPosLocked(subtask, testcase int) bool {
	return subtask >= 0 && subtask < len(t.subtasks) &&
		testcase >= 0 && testcase < len(t.subtasks[subtask].cases)
}

func (t *Tracker) resolveSlotLocked(s *slot, result *model.TestcaseResult) {
	if result == nil {
		s.state = slotSkipped
		s.hash = ""
		return
	}
	s.state = slotResolved
	if s.hash != "" {
		t.results[s.hash] = result
	}
}

func (t *Tracker) emitLocked(ctx context.Context) {
	if t.reporter == nil {
		return
	}
	t.reporter.Report(ctx, t.snapshotLocked())
}

func (t *Tracker) snapshotLocked() *model.ProgressSnapshot {
	snap := &model.ProgressSnapshot{
		SubmissionID:  t.submissionID,
		ProgressType:  t.phase,
		Status:        t.status,
		Score:         t.score,
		TotalTimeMs:   t.totalTimeMs,
		Message:       t.message,
		SystemMessage: t.sysMessage,
	}
	if t.compile != nil {
		compile := *t.compile
		snap.Compile = &compile
	}
	if len(t.samples) > 0 {
		snap.Samples = make([]model.TestcaseSlot, len(t.samples))
		for i := range t.samples {
			snap.Samples[i] = wireSlot(t.samples[i])
		}
	}
	if len(t.subtasks) > 0 {
		snap.Subtasks = make([]model.SubtaskProgress, len(t.subtasks))
		for i, st := range t.subtasks {
			cases := make([]model.TestcaseSlot, len(st.cases))
			for j := range st.cases {
				cases[j] = wireSlot(st.cases[j])
			}
			snap.Subtasks[i] = model.SubtaskProgress{
				Score:     st.score,
				FullScore: st.fullScore,
				Testcases: cases,
			}
		}
	}
	if len(t.results) > 0 {
		snap.TestcaseResults = make(map[string]*model.TestcaseResult, len(t.results))
		for hash, result := range t.results {
			snap.TestcaseResults[hash] = result
		}
	}
	return snap
}

// wireSlot keeps the implicit skipped encoding: a skipped slot has none of
// waiting/running/testcaseHash set.
func wireSlot(s slot) model.TestcaseSlot {
	switch s.state {
	case slotWaiting:
		return model.TestcaseSlot{Waiting: true}
	case slotRunning:
		return model.TestcaseSlot{Running: true}
	case slotResolved:
		return model.TestcaseSlot{TestcaseHash: s.hash}
	default:
		return model.TestcaseSlot{}
	}
}
