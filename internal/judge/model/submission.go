package model

import "encoding/json"

// ProblemType identifies the evaluation strategy a submission is judged with.
// The set is closed: an unknown value is rejected before any file staging happens.
type ProblemType string

const (
	ProblemTypeTraditional  ProblemType = "traditional"
	ProblemTypeInteraction  ProblemType = "interaction"
	ProblemTypeSubmitAnswer ProblemType = "submit-answer"
)

// ContentID is a content-addressed object storage identifier. Two testdata
// files with the same bytes share the same id.
type ContentID string

// SampleData references the input/output pair of one sample testcase.
type SampleData struct {
	InputData  ContentID `json:"inputData"`
	OutputData ContentID `json:"outputData"`
}

// FileMeta describes an optional submitted file (e.g. a submit-answer archive).
type FileMeta struct {
	ContentID ContentID `json:"contentId"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size"`
	SHA256    string    `json:"sha256,omitempty"`
}

// SubmissionContent carries the submitted program itself.
type SubmissionContent struct {
	Language     string   `json:"language"`
	Code         string   `json:"code"`
	CompileFlags []string `json:"compileFlags,omitempty"`
}

// Submission is one judging request. It is owned by the driver for the
// duration of a single run and never persisted by the worker.
type Submission struct {
	ID          string      `json:"submissionId"`
	ProblemType ProblemType `json:"problemType"`

	// JudgeInfo is opaque to the orchestrator. Only the resolved judger
	// interprets it.
	JudgeInfo json.RawMessage `json:"judgeInfo"`

	Samples  []SampleData           `json:"samples,omitempty"`
	TestData map[string]ContentID   `json:"testData"`
	File     *FileMeta              `json:"file,omitempty"`
	Content  SubmissionContent      `json:"content"`
	Extra    map[string]interface{} `json:"extraParameters,omitempty"`
}
