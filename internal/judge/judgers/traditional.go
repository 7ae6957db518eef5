package judgers

import (
	"context"
	"encoding/json"
	"fmt"

	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/model"
)

// traditionalJudger evaluates classic input/output problems: compile the
// submission, run it against each testcase input, diff against the answer.
type traditionalJudger struct{}

func (j *traditionalJudger) ValidateJudgeInfo(sub *model.Submission) error {
	info, err := parseJudgeInfo(sub.JudgeInfo)
	if err != nil {
		return err
	}
	plans, err := buildPlan(info)
	if err != nil {
		return err
	}
	for si, plan := range plans {
		for ci, c := range plan.cases {
			where := fmt.Sprintf("subtask %d testcase %d", si+1, ci+1)
			if err := requireTestData(sub.TestData, c.info.InputFile, where+" input"); err != nil {
				return err
			}
			if err := requireTestData(sub.TestData, c.info.OutputFile, where+" output"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j *traditionalJudger) TestcaseHash(info json.RawMessage, subtask, testcase int, testData map[string]model.ContentID, extra map[string]interface{}) (string, error) {
	payload, err := positionPayload(string(model.ProblemTypeTraditional), info, subtask, testcase, testData, extra)
	if err != nil {
		return "", err
	}
	return payload.hash()
}

func (j *traditionalJudger) SampleHash(info json.RawMessage, sample model.SampleData, _ map[string]model.ContentID, extra map[string]interface{}) (string, error) {
	parsed, err := parseJudgeInfo(info)
	if err != nil {
		return "", err
	}
	return hashPayload{
		Kind:           string(model.ProblemTypeTraditional),
		Input:          sample.InputData,
		Answer:         sample.OutputData,
		TimeLimitMs:    pick(parsed.TimeLimitMs, defaultTimeLimitMs),
		MemoryLimitMiB: pick(parsed.MemoryLimitMiB, defaultMemoryLimitMiB),
		Extra:          extra,
	}.hash()
}

func (j *traditionalJudger) Run(ctx context.Context, task *Task) error {
	info, err := parseJudgeInfo(task.Submission.JudgeInfo)
	if err != nil {
		return err
	}
	plans, err := buildPlan(info)
	if err != nil {
		return err
	}

	artifact, ok, err := compile(ctx, task)
	if err != nil || !ok {
		return err
	}

	tracker := task.Progress
	tracker.StartedRunning(ctx, len(task.Submission.Samples), trackerPlans(plans))

	sampleResults, err := runSamples(ctx, task, func(ctx context.Context, _ int, data model.SampleData) (*model.TestcaseResult, error) {
		return task.Executor.Exec(ctx, engine.ExecTask{
			Kind:           engine.ExecStandard,
			ArtifactID:     artifact,
			InputFile:      task.Files.Path(data.InputData),
			AnswerFile:     task.Files.Path(data.OutputData),
			TimeLimitMs:    pick(info.TimeLimitMs, defaultTimeLimitMs),
			MemoryLimitMiB: pick(info.MemoryLimitMiB, defaultMemoryLimitMiB),
		})
	})
	if err != nil {
		return err
	}

	score, results, err := runSubtasks(ctx, task, plans, func(ctx context.Context, _, _ int, c casePlan) (*model.TestcaseResult, error) {
		return task.Executor.Exec(ctx, engine.ExecTask{
			Kind:           engine.ExecStandard,
			ArtifactID:     artifact,
			InputFile:      task.Files.Path(task.Submission.TestData[c.info.InputFile]),
			AnswerFile:     task.Files.Path(task.Submission.TestData[c.info.OutputFile]),
			TimeLimitMs:    c.timeLimitMs,
			MemoryLimitMiB: c.memoryLimitMiB,
		})
	})
	if err != nil {
		return err
	}

	tracker.Finished(ctx, aggregateStatus(append(sampleResults, results...)), score)
	return nil
}

// compile runs the compile step for variants that have one. The bool result
// reports whether judging should continue; a compile failure terminates the
// submission with CompilationError and returns false without error.
func compile(ctx context.Context, task *Task) (string, bool, error) {
	tracker := task.Progress
	tracker.Compiling(ctx)
	result, err := task.Executor.Compile(ctx, engine.CompileTask{
		Language:     task.Submission.Content.Language,
		Code:         task.Submission.Content.Code,
		CompileFlags: task.Submission.Content.CompileFlags,
	})
	if err != nil {
		return "", false, err
	}
	tracker.Compiled(result.Success, result.Message)
	if !result.Success {
		tracker.Finished(ctx, model.StatusCompilationError, 0)
		return "", false, nil
	}
	return result.ArtifactID, true, nil
}
