package judgers

import (
	"encoding/json"
	"fmt"

	"orbitoj/internal/judge/model"
	"orbitoj/internal/judge/progress"
	appErr "orbitoj/pkg/errors"
)

// Scoring types a subtask may declare.
const (
	scoringSum      = "Sum"
	scoringGroupMin = "GroupMin"
	scoringGroupMul = "GroupMul"
)

const (
	defaultTimeLimitMs    = 1000
	defaultMemoryLimitMiB = 256
)

// judgeInfo is the configuration schema shared by the problem types. The
// orchestrator treats it as opaque; only this package interprets it.
type judgeInfo struct {
	TimeLimitMs    int64 `json:"timeLimit"`
	MemoryLimitMiB int64 `json:"memoryLimit"`

	Subtasks []subtaskInfo `json:"subtasks"`
	// Testcases is the flat form used when the problem has no subtask
	// structure; it is normalized into a single subtask.
	Testcases []testcaseInfo `json:"testcases"`

	Interactor *interactorInfo `json:"interactor"`
}

type subtaskInfo struct {
	TimeLimitMs    int64          `json:"timeLimit"`
	MemoryLimitMiB int64          `json:"memoryLimit"`
	ScoringType    string         `json:"scoringType"`
	Points         *float64       `json:"points"`
	Testcases      []testcaseInfo `json:"testcases"`
}

type testcaseInfo struct {
	InputFile  string `json:"inputFile"`
	OutputFile string `json:"outputFile"`
	// UserOutputFilename names the answer file a submit-answer submission
	// must contain for this testcase.
	UserOutputFilename string `json:"userOutputFilename"`

	TimeLimitMs    int64    `json:"timeLimit"`
	MemoryLimitMiB int64    `json:"memoryLimit"`
	Points         *float64 `json:"points"`
}

type interactorInfo struct {
	Interface      string `json:"interface"` // stdio
	SourceFile     string `json:"sourceFile"`
	TimeLimitMs    int64  `json:"timeLimit"`
	MemoryLimitMiB int64  `json:"memoryLimit"`
}

// casePlan is one fully resolved testcase of the run plan.
type casePlan struct {
	info           testcaseInfo
	timeLimitMs    int64
	memoryLimitMiB int64
}

// subtaskPlan is one fully resolved subtask of the run plan.
type subtaskPlan struct {
	scoringType string
	fullScore   float64
	cases       []casePlan
}

func parseJudgeInfo(raw json.RawMessage) (*judgeInfo, error) {
	if len(raw) == 0 {
		return nil, appErr.ConfigurationError("judge configuration is missing")
	}
	var info judgeInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, appErr.ConfigurationError("judge configuration is not valid JSON")
	}
	return &info, nil
}

// buildPlan normalizes the judge info into resolved subtasks: the flat
// testcase form becomes one Sum subtask, limits cascade problem -> subtask
// -> testcase, and omitted points share the unassigned remainder equally.
func buildPlan(info *judgeInfo) ([]subtaskPlan, error) {
	subtasks := info.Subtasks
	if len(subtasks) == 0 {
		if len(info.Testcases) == 0 {
			return nil, appErr.ConfigurationError("no testcases configured")
		}
		subtasks = []subtaskInfo{{ScoringType: scoringSum, Testcases: info.Testcases}}
	}

	assigned := 0.0
	unassigned := 0
	for i := range subtasks {
		if subtasks[i].Points != nil {
			assigned += *subtasks[i].Points
		} else {
			unassigned++
		}
	}
	if assigned > 100 {
		return nil, appErr.ConfigurationError(fmt.Sprintf("subtask points sum to %.1f, exceeding 100", assigned))
	}

	plans := make([]subtaskPlan, len(subtasks))
	for i, st := range subtasks {
		scoring := st.ScoringType
		if scoring == "" {
			scoring = scoringSum
		}
		switch scoring {
		case scoringSum, scoringGroupMin, scoringGroupMul:
		default:
			return nil, appErr.ConfigurationError(fmt.Sprintf("subtask %d: unknown scoring type %q", i+1, st.ScoringType))
		}
		if len(st.Testcases) == 0 {
			return nil, appErr.ConfigurationError(fmt.Sprintf("subtask %d has no testcases", i+1))
		}

		fullScore := 0.0
		if st.Points != nil {
			fullScore = *st.Points
		} else if unassigned > 0 {
			fullScore = (100 - assigned) / float64(unassigned)
		}

		stTime := pick(st.TimeLimitMs, info.TimeLimitMs, defaultTimeLimitMs)
		stMemory := pick(st.MemoryLimitMiB, info.MemoryLimitMiB, defaultMemoryLimitMiB)

		cases := make([]casePlan, len(st.Testcases))
		for j, tc := range st.Testcases {
			cases[j] = casePlan{
				info:           tc,
				timeLimitMs:    pick(tc.TimeLimitMs, stTime, defaultTimeLimitMs),
				memoryLimitMiB: pick(tc.MemoryLimitMiB, stMemory, defaultMemoryLimitMiB),
			}
		}
		plans[i] = subtaskPlan{scoringType: scoring, fullScore: fullScore, cases: cases}
	}
	return plans, nil
}

func pick(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// requireTestData checks that a judge-info file reference resolves to a
// content id in the submission's testdata mapping.
func requireTestData(testData map[string]model.ContentID, filename, where string) error {
	if filename == "" {
		return appErr.ConfigurationError(fmt.Sprintf("%s: file name is empty", where))
	}
	if _, ok := testData[filename]; !ok {
		return appErr.ConfigurationError(fmt.Sprintf("%s: file %q not found in testdata", where, filename))
	}
	return nil
}

// trackerPlans converts the run plan into the tracker's slot layout.
func trackerPlans(plans []subtaskPlan) []progress.SubtaskPlan {
	out := make([]progress.SubtaskPlan, len(plans))
	for i, plan := range plans {
		out[i] = progress.SubtaskPlan{Testcases: len(plan.cases), FullScore: plan.fullScore}
	}
	return out
}

// aggregateRaw computes a subtask's raw 0-100 score from its case score
// rates according to the scoring type.
func aggregateRaw(scoringType string, rates []float64) float64 {
	if len(rates) == 0 {
		return 0
	}
	switch scoringType {
	case scoringGroupMin:
		min := rates[0]
		for _, r := range rates[1:] {
			if r < min {
				min = r
			}
		}
		return min * 100
	case scoringGroupMul:
		product := 1.0
		for _, r := range rates {
			product *= r
		}
		return product * 100
	default:
		sum := 0.0
		for _, r := range rates {
			sum += r
		}
		return sum / float64(len(rates)) * 100
	}
}

// statusRank orders verdicts from best to worst so the submission status is
// the worst verdict observed.
var statusRank = map[model.TestcaseVerdict]int{
	model.VerdictAccepted:            0,
	model.VerdictPartiallyCorrect:    1,
	model.VerdictWrongAnswer:         2,
	model.VerdictOutputLimitExceeded: 3,
	model.VerdictTimeLimitExceeded:   4,
	model.VerdictMemoryLimitExceeded: 5,
	model.VerdictRuntimeError:        6,
	model.VerdictFileError:           7,
	model.VerdictJudgementFailed:     8,
}

var verdictStatus = map[model.TestcaseVerdict]model.SubmissionStatus{
	model.VerdictAccepted:            model.StatusAccepted,
	model.VerdictPartiallyCorrect:    model.StatusPartiallyCorrect,
	model.VerdictWrongAnswer:         model.StatusWrongAnswer,
	model.VerdictOutputLimitExceeded: model.StatusOutputLimitExceeded,
	model.VerdictTimeLimitExceeded:   model.StatusTimeLimitExceeded,
	model.VerdictMemoryLimitExceeded: model.StatusMemoryLimitExceeded,
	model.VerdictRuntimeError:        model.StatusRuntimeError,
	model.VerdictFileError:           model.StatusFileError,
	model.VerdictJudgementFailed:     model.StatusJudgementFailed,
}

// aggregateStatus maps the worst observed verdict to the final submission
// status. All-accepted runs with partial scores still report
// PartiallyCorrect.
func aggregateStatus(results []*model.TestcaseResult) model.SubmissionStatus {
	worst := model.VerdictAccepted
	seen := false
	for _, result := range results {
		if result == nil {
			continue
		}
		seen = true
		if statusRank[result.Verdict] > statusRank[worst] {
			worst = result.Verdict
		}
	}
	if !seen {
		return model.StatusJudgementFailed
	}
	if status, ok := verdictStatus[worst]; ok {
		return status
	}
	return model.StatusJudgementFailed
}
