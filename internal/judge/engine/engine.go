// Package engine defines the contract of the external compile/sandbox
// execution engine. The worker never interprets how code is compiled or
// run in isolation; it only consumes results through this boundary.
package engine

import (
	"context"

	"orbitoj/internal/judge/model"
)

// ExecKind selects the execution mode for one testcase.
type ExecKind string

const (
	// ExecStandard runs the compiled program against an input file and
	// diffs its output against the answer file.
	ExecStandard ExecKind = "standard"
	// ExecInteractive pipes the compiled program against an interactor.
	ExecInteractive ExecKind = "interactive"
	// ExecAnswerCheck diffs a submitted answer file against the answer
	// file without running any user program.
	ExecAnswerCheck ExecKind = "answer"
)

// CompileTask describes one compile request.
type CompileTask struct {
	Language     string   `json:"language"`
	Code         string   `json:"code"`
	CompileFlags []string `json:"compileFlags,omitempty"`
}

// CompileResult is the outcome of a compile request. ArtifactID references
// the compiled binary inside the engine for subsequent exec requests.
type CompileResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ArtifactID string `json:"artifactId,omitempty"`
}

// ExecTask describes one testcase execution request. File fields are local
// paths staged by the files store.
type ExecTask struct {
	Kind       ExecKind `json:"kind"`
	ArtifactID string   `json:"artifactId,omitempty"`

	InputFile  string `json:"inputFile,omitempty"`
	AnswerFile string `json:"answerFile,omitempty"`
	// UserAnswerFile is the submitted answer archive for ExecAnswerCheck,
	// and UserAnswerMember names the archive member to check.
	UserAnswerFile   string `json:"userAnswerFile,omitempty"`
	UserAnswerMember string `json:"userAnswerMember,omitempty"`
	// InteractorFile is the interactor source for ExecInteractive.
	InteractorFile string `json:"interactorFile,omitempty"`

	TimeLimitMs    int64 `json:"timeLimit"`
	MemoryLimitMiB int64 `json:"memoryLimit"`
}

// Executor is the execution engine capability consumed by the judgers.
type Executor interface {
	Compile(ctx context.Context, task CompileTask) (*CompileResult, error)
	Exec(ctx context.Context, task ExecTask) (*model.TestcaseResult, error)
}
