package judgers

import (
	"context"
	"encoding/json"
	"fmt"

	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/model"
	appErr "orbitoj/pkg/errors"
)

const interactorStdio = "stdio"

// interactionJudger evaluates problems where the submission talks to a
// problem-provided interactor over stdio. There is no answer file to diff;
// the interactor decides the score of each testcase.
type interactionJudger struct{}

func (j *interactionJudger) ValidateJudgeInfo(sub *model.Submission) error {
	info, err := parseJudgeInfo(sub.JudgeInfo)
	if err != nil {
		return err
	}
	if info.Interactor == nil {
		return appErr.ConfigurationError("interaction problem has no interactor")
	}
	if info.Interactor.Interface != interactorStdio {
		return appErr.ConfigurationError(fmt.Sprintf("unsupported interactor interface %q", info.Interactor.Interface))
	}
	if err := requireTestData(sub.TestData, info.Interactor.SourceFile, "interactor source"); err != nil {
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
		}
	}
	return nil
}

func (j *interactionJudger) TestcaseHash(info json.RawMessage, subtask, testcase int, testData map[string]model.ContentID, extra map[string]interface{}) (string, error) {
	payload, err := positionPayload(string(model.ProblemTypeInteraction), info, subtask, testcase, testData, extra)
	if err != nil {
		return "", err
	}
	return payload.hash()
}

func (j *interactionJudger) SampleHash(info json.RawMessage, sample model.SampleData, testData map[string]model.ContentID, extra map[string]interface{}) (string, error) {
	parsed, err := parseJudgeInfo(info)
	if err != nil {
		return "", err
	}
	var interactor model.ContentID
	if parsed.Interactor != nil {
		interactor = testData[parsed.Interactor.SourceFile]
	}
	return hashPayload{
		Kind:           string(model.ProblemTypeInteraction),
		Input:          sample.InputData,
		Interactor:     interactor,
		TimeLimitMs:    pick(parsed.TimeLimitMs, defaultTimeLimitMs),
		MemoryLimitMiB: pick(parsed.MemoryLimitMiB, defaultMemoryLimitMiB),
		Extra:          extra,
	}.hash()
}

func (j *interactionJudger) Run(ctx context.Context, task *Task) error {
	info, err := parseJudgeInfo(task.Submission.JudgeInfo)
	if err != nil {
		return err
	}
	plans, err := buildPlan(info)
	if err != nil {
		return err
	}
	interactorPath := task.Files.Path(task.Submission.TestData[info.Interactor.SourceFile])

	artifact, ok, err := compile(ctx, task)
	if err != nil || !ok {
		return err
	}

	tracker := task.Progress
	tracker.StartedRunning(ctx, len(task.Submission.Samples), trackerPlans(plans))

	sampleResults, err := runSamples(ctx, task, func(ctx context.Context, _ int, data model.SampleData) (*model.TestcaseResult, error) {
		return task.Executor.Exec(ctx, engine.ExecTask{
			Kind:           engine.ExecInteractive,
			ArtifactID:     artifact,
			InputFile:      task.Files.Path(data.InputData),
			InteractorFile: interactorPath,
			TimeLimitMs:    pick(info.TimeLimitMs, defaultTimeLimitMs),
			MemoryLimitMiB: pick(info.MemoryLimitMiB, defaultMemoryLimitMiB),
		})
	})
	if err != nil {
		return err
	}

	score, results, err := runSubtasks(ctx, task, plans, func(ctx context.Context, _, _ int, c casePlan) (*model.TestcaseResult, error) {
		return task.Executor.Exec(ctx, engine.ExecTask{
			Kind:           engine.ExecInteractive,
			ArtifactID:     artifact,
			InputFile:      task.Files.Path(task.Submission.TestData[c.info.InputFile]),
			InteractorFile: interactorPath,
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
