package judgers

import (
	"context"
	"encoding/json"
	"fmt"

	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/model"
	appErr "orbitoj/pkg/errors"
)

// submitAnswerJudger evaluates problems where the user submits the answer
// files themselves. There is nothing to compile and samples are never run;
// each testcase checks one member of the submitted archive against the
// reference answer.
type submitAnswerJudger struct{}

func (j *submitAnswerJudger) ValidateJudgeInfo(sub *model.Submission) error {
	info, err := parseJudgeInfo(sub.JudgeInfo)
	if err != nil {
		return err
	}
	plans, err := buildPlan(info)
	if err != nil {
		return err
	}
	if sub.File == nil {
		return appErr.ConfigurationError("submit-answer problems require a submitted answer file")
	}
	for si, plan := range plans {
		for ci, c := range plan.cases {
			where := fmt.Sprintf("subtask %d testcase %d", si+1, ci+1)
			if err := requireTestData(sub.TestData, c.info.OutputFile, where+" output"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j *submitAnswerJudger) TestcaseHash(info json.RawMessage, subtask, testcase int, testData map[string]model.ContentID, extra map[string]interface{}) (string, error) {
	payload, err := positionPayload(string(model.ProblemTypeSubmitAnswer), info, subtask, testcase, testData, extra)
	if err != nil {
		return "", err
	}
	return payload.hash()
}

func (j *submitAnswerJudger) SampleHash(info json.RawMessage, sample model.SampleData, _ map[string]model.ContentID, extra map[string]interface{}) (string, error) {
	return hashPayload{
		Kind:   string(model.ProblemTypeSubmitAnswer),
		Input:  sample.InputData,
		Answer: sample.OutputData,
		Extra:  extra,
	}.hash()
}

func (j *submitAnswerJudger) Run(ctx context.Context, task *Task) error {
	if task.Submitted == nil {
		return appErr.ConfigurationError("submit-answer problems require a submitted answer file")
	}
	info, err := parseJudgeInfo(task.Submission.JudgeInfo)
	if err != nil {
		return err
	}
	plans, err := buildPlan(info)
	if err != nil {
		return err
	}

	tracker := task.Progress
	tracker.StartedRunning(ctx, 0, trackerPlans(plans))

	score, results, err := runSubtasks(ctx, task, plans, func(ctx context.Context, _, _ int, c casePlan) (*model.TestcaseResult, error) {
		return task.Executor.Exec(ctx, engine.ExecTask{
			Kind:             engine.ExecAnswerCheck,
			AnswerFile:       task.Files.Path(task.Submission.TestData[c.info.OutputFile]),
			UserAnswerFile:   task.Submitted.Path(),
			UserAnswerMember: answerMember(c.info),
		})
	})
	if err != nil {
		return err
	}

	tracker.Finished(ctx, aggregateStatus(results), score)
	return nil
}

// answerMember names the submitted archive member for one testcase. When
// the problem does not name one explicitly the reference answer filename
// is expected in the archive.
func answerMember(info testcaseInfo) string {
	if info.UserOutputFilename != "" {
		return info.UserOutputFilename
	}
	return info.OutputFile
}
