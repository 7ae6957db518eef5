package model

// ProgressType is the phase tag of a progress snapshot. Phases only move
// forward: Preparing -> Compiling -> Running -> Finished, with Compiling
// optional for problem types that have no compile step.
type ProgressType string

const (
	ProgressPreparing ProgressType = "Preparing"
	ProgressCompiling ProgressType = "Compiling"
	ProgressRunning   ProgressType = "Running"
	ProgressFinished  ProgressType = "Finished"
)

// SubmissionStatus classifies a finished submission.
type SubmissionStatus string

const (
	StatusPending             SubmissionStatus = "Pending"
	StatusCompilationError    SubmissionStatus = "CompilationError"
	StatusFileError           SubmissionStatus = "FileError"
	StatusRuntimeError        SubmissionStatus = "RuntimeError"
	StatusTimeLimitExceeded   SubmissionStatus = "TimeLimitExceeded"
	StatusMemoryLimitExceeded SubmissionStatus = "MemoryLimitExceeded"
	StatusOutputLimitExceeded SubmissionStatus = "OutputLimitExceeded"
	StatusPartiallyCorrect    SubmissionStatus = "PartiallyCorrect"
	StatusWrongAnswer         SubmissionStatus = "WrongAnswer"
	StatusAccepted            SubmissionStatus = "Accepted"
	StatusJudgementFailed     SubmissionStatus = "JudgementFailed"
	StatusConfigurationError  SubmissionStatus = "ConfigurationError"
	StatusSystemError         SubmissionStatus = "SystemError"
	StatusCanceled            SubmissionStatus = "Canceled"
)

// TestcaseVerdict classifies a single executed testcase.
type TestcaseVerdict string

const (
	VerdictAccepted            TestcaseVerdict = "Accepted"
	VerdictWrongAnswer         TestcaseVerdict = "WrongAnswer"
	VerdictPartiallyCorrect    TestcaseVerdict = "PartiallyCorrect"
	VerdictTimeLimitExceeded   TestcaseVerdict = "TimeLimitExceeded"
	VerdictMemoryLimitExceeded TestcaseVerdict = "MemoryLimitExceeded"
	VerdictOutputLimitExceeded TestcaseVerdict = "OutputLimitExceeded"
	VerdictRuntimeError        TestcaseVerdict = "RuntimeError"
	VerdictFileError           TestcaseVerdict = "FileError"
	VerdictJudgementFailed     TestcaseVerdict = "JudgementFailed"
)

// TestcaseResult is the execution outcome recorded for one testcase identity.
// Results are shared between slots whose identity hashes are equal.
type TestcaseResult struct {
	Verdict        TestcaseVerdict `json:"verdict"`
	TimeMs         int64           `json:"time"`
	MemoryKiB      int64           `json:"memory"`
	ScoreRate      float64         `json:"scoreRate"`
	Input          string          `json:"input,omitempty"`
	Output         string          `json:"output,omitempty"`
	UserOutput     string          `json:"userOutput,omitempty"`
	UserError      string          `json:"userError,omitempty"`
	CheckerMessage string          `json:"checkerMessage,omitempty"`
	SystemMessage  string          `json:"systemMessage,omitempty"`
}

// CompileOutcome reports the compile step once it is known.
type CompileOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestcaseSlot is the wire form of a sample's or testcase's progress state.
// A slot is waiting, running, or resolved (has a testcaseHash). A skipped
// slot serializes with none of the three fields set; consumers depend on
// this implicit encoding, so it is kept even though the tracker models the
// state explicitly.
type TestcaseSlot struct {
	Waiting      bool   `json:"waiting,omitempty"`
	Running      bool   `json:"running,omitempty"`
	TestcaseHash string `json:"testcaseHash,omitempty"`
}

// SubtaskProgress groups the testcase slots of one subtask with its score.
type SubtaskProgress struct {
	Score     float64        `json:"score"`
	FullScore float64        `json:"fullScore"`
	Testcases []TestcaseSlot `json:"testcases"`
}

// ProgressSnapshot is the complete externally visible state of a submission
// at a point in time. Every mutating event re-emits the whole snapshot, not
// a diff.
type ProgressSnapshot struct {
	SubmissionID string       `json:"submissionId"`
	ProgressType ProgressType `json:"progressType"`

	Compile *CompileOutcome `json:"compile,omitempty"`

	Samples  []TestcaseSlot    `json:"samples,omitempty"`
	Subtasks []SubtaskProgress `json:"subtasks,omitempty"`

	// TestcaseResults maps testcase identity hash to its result, populated
	// lazily as executions finish.
	TestcaseResults map[string]*TestcaseResult `json:"testcaseResult,omitempty"`

	// Terminal fields, set exactly once when ProgressType reaches Finished.
	Status      SubmissionStatus `json:"status,omitempty"`
	Score       float64          `json:"score"`
	TotalTimeMs int64            `json:"totalTime,omitempty"`

	// Message carries the sanitized text of a configuration error.
	Message string `json:"message,omitempty"`
	// SystemMessage carries diagnostic detail for system errors.
	SystemMessage string `json:"systemMessage,omitempty"`
}

// TaskMessage is the queue payload that requests one judging run.
type TaskMessage struct {
	Submission Submission `json:"submission"`
	EnqueuedAt int64      `json:"enqueuedAt"`
}
