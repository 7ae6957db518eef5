package judgers

import (
	"context"
	"errors"
	"sync"

	"orbitoj/internal/judge/model"
)

// caseRunner executes one testcase position and returns its result. It is
// only invoked for positions the result cache could not satisfy.
type caseRunner func(ctx context.Context, subtask, testcase int, c casePlan) (*model.TestcaseResult, error)

// sampleRunner executes one sample testcase.
type sampleRunner func(ctx context.Context, sample int, data model.SampleData) (*model.TestcaseResult, error)

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// absorb converts a per-testcase engine failure into a JudgementFailed
// result so it never escapes the judger; cancellation is not absorbed.
func absorb(err error) *model.TestcaseResult {
	return &model.TestcaseResult{
		Verdict:       model.VerdictJudgementFailed,
		SystemMessage: err.Error(),
	}
}

// runSamples runs all sample testcases sequentially, deduplicating through
// the result cache. Returned results feed status aggregation only.
func runSamples(ctx context.Context, task *Task, run sampleRunner) ([]*model.TestcaseResult, error) {
	tracker := task.Progress
	results := make([]*model.TestcaseResult, 0, len(task.Submission.Samples))
	for i, sample := range task.Submission.Samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cached, err := tracker.SampleWillEnqueue(i)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			tracker.SampleFinished(ctx, i, cached)
			results = append(results, cached)
			continue
		}
		tracker.SampleRunning(ctx, i)
		result, err := run(ctx, i, sample)
		if err != nil {
			if isCancellation(err) {
				return nil, err
			}
			result = absorb(err)
		}
		tracker.SampleFinished(ctx, i, result)
		results = append(results, result)
	}
	return results, nil
}

// runSubtasks runs every subtask of the plan and returns the total score and
// all case results. Sum subtasks dispatch their cases concurrently; GroupMin
// and GroupMul run sequentially and skip the remaining cases once a case
// scores zero, since the aggregate cannot recover.
func runSubtasks(ctx context.Context, task *Task, plans []subtaskPlan, run caseRunner) (float64, []*model.TestcaseResult, error) {
	tracker := task.Progress
	total := 0.0
	var all []*model.TestcaseResult

	for si, plan := range plans {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		rates := make([]float64, len(plan.cases))
		results := make([]*model.TestcaseResult, len(plan.cases))

		if plan.scoringType == scoringSum {
			var wg sync.WaitGroup
			var mu sync.Mutex
			var runErr error
			for ci := range plan.cases {
				wg.Add(1)
				go func(ci int) {
					defer wg.Done()
					result, err := runCase(ctx, task, si, ci, plan.cases[ci], run)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						if runErr == nil {
							runErr = err
						}
						return
					}
					results[ci] = result
					rates[ci] = result.ScoreRate
				}(ci)
			}
			wg.Wait()
			if runErr != nil {
				return 0, nil, runErr
			}
		} else {
			skipFrom := -1
			for ci := range plan.cases {
				result, err := runCase(ctx, task, si, ci, plan.cases[ci], run)
				if err != nil {
					return 0, nil, err
				}
				results[ci] = result
				rates[ci] = result.ScoreRate
				if result.ScoreRate == 0 {
					skipFrom = ci + 1
					break
				}
			}
			if skipFrom >= 0 {
				for ci := skipFrom; ci < len(plan.cases); ci++ {
					tracker.TestcaseFinished(ctx, si, ci, nil)
				}
				rates = rates[:skipFrom]
				results = results[:skipFrom]
			}
		}

		raw := aggregateRaw(plan.scoringType, rates)
		tracker.SubtaskScoreUpdated(ctx, si, raw)
		total += raw * plan.fullScore / 100
		all = append(all, results...)
	}
	return total, all, nil
}

func runCase(ctx context.Context, task *Task, subtask, testcase int, c casePlan, run caseRunner) (*model.TestcaseResult, error) {
	tracker := task.Progress
	cached, err := tracker.TestcaseWillEnqueue(subtask, testcase)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		tracker.TestcaseFinished(ctx, subtask, testcase, cached)
		return cached, nil
	}
	tracker.TestcaseRunning(ctx, subtask, testcase)
	result, err := run(ctx, subtask, testcase, c)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		result = absorb(err)
	}
	tracker.TestcaseFinished(ctx, subtask, testcase, result)
	return result, nil
}
