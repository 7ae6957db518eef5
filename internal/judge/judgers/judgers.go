// Package judgers implements the problem-type evaluation strategies. Each
// variant owns its run plan (which testcases exist, in what order, with what
// limits) and reports milestones through the progress tracker; the driver
// stays agnostic to how a variant executes.
package judgers

import (
	"context"
	"encoding/json"

	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/files"
	"orbitoj/internal/judge/model"
	"orbitoj/internal/judge/progress"
)

// Task bundles everything a judger needs for one run. The progress tracker
// is the event callback table: installed by the driver, read-only here.
type Task struct {
	Submission *model.Submission
	Files      *files.Store
	Submitted  *files.SubmittedFile
	Executor   engine.Executor
	Progress   *progress.Tracker
}

// Judger is the four-operation contract a problem type variant satisfies.
// New evaluation strategies are added by registering a new variant, never
// by subclassing a shared base.
type Judger interface {
	// ValidateJudgeInfo fails when the judge configuration is structurally
	// invalid for this variant. Any returned error is user-facing.
	ValidateJudgeInfo(sub *model.Submission) error

	// TestcaseHash computes the identity of one subtask testcase. Equal
	// identities mean semantically identical executions.
	TestcaseHash(info json.RawMessage, subtask, testcase int, testData map[string]model.ContentID, extra map[string]interface{}) (string, error)

	// SampleHash computes the identity of one sample testcase.
	SampleHash(info json.RawMessage, sample model.SampleData, testData map[string]model.ContentID, extra map[string]interface{}) (string, error)

	// Run drives the compile/execute/score sequence and calls Finished on
	// the tracker before returning nil.
	Run(ctx context.Context, task *Task) error
}

var registry = map[model.ProblemType]Judger{
	model.ProblemTypeTraditional:  &traditionalJudger{},
	model.ProblemTypeInteraction:  &interactionJudger{},
	model.ProblemTypeSubmitAnswer: &submitAnswerJudger{},
}

// Resolve returns the judger registered for the problem type.
func Resolve(problemType model.ProblemType) (Judger, bool) {
	judger, ok := registry[problemType]
	return judger, ok
}

// Hasher binds a judger and submission into the positional hashing
// capability the progress tracker consumes.
func Hasher(judger Judger, sub *model.Submission) progress.TestcaseHasher {
	return &boundHasher{judger: judger, sub: sub}
}

type boundHasher struct {
	judger Judger
	sub    *model.Submission
}

func (h *boundHasher) SampleTestcaseHash(sample int) (string, error) {
	if sample < 0 || sample >= len(h.sub.Samples) {
		return "", nil
	}
	return h.judger.SampleHash(h.sub.JudgeInfo, h.sub.Samples[sample], h.sub.TestData, h.sub.Extra)
}

func (h *boundHasher) TestcaseHash(subtask, testcase int) (string, error) {
	return h.judger.TestcaseHash(h.sub.JudgeInfo, subtask, testcase, h.sub.TestData, h.sub.Extra)
}
