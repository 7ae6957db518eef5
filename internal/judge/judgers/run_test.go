package judgers_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"orbitoj/internal/common/storage"
	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/files"
	"orbitoj/internal/judge/judgers"
	"orbitoj/internal/judge/model"
	"orbitoj/internal/judge/progress"
	appErr "orbitoj/pkg/errors"
)

type captureReporter struct {
	mu   sync.Mutex
	last *model.ProgressSnapshot
}

func (r *captureReporter) Report(_ context.Context, snapshot *model.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = snapshot
}

func (r *captureReporter) snapshot() *model.ProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type fakeStorage struct {
	objects map[string][]byte
}

func (s *fakeStorage) GetObject(_ context.Context, _, objectKey string) (io.ReadCloser, error) {
	data, ok := s.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) StatObject(_ context.Context, _, objectKey string) (storage.ObjectStat, error) {
	data, ok := s.objects[objectKey]
	if !ok {
		return storage.ObjectStat{}, fmt.Errorf("object %s not found", objectKey)
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

type fakeExecutor struct {
	mu           sync.Mutex
	compileCalls int
	execCalls    int
	execTasks    []engine.ExecTask

	compileFn func(engine.CompileTask) (*engine.CompileResult, error)
	execFn    func(engine.ExecTask) (*model.TestcaseResult, error)
}

func (e *fakeExecutor) Compile(_ context.Context, task engine.CompileTask) (*engine.CompileResult, error) {
	e.mu.Lock()
	e.compileCalls++
	e.mu.Unlock()
	if e.compileFn != nil {
		return e.compileFn(task)
	}
	return &engine.CompileResult{Success: true, ArtifactID: "artifact-1"}, nil
}

func (e *fakeExecutor) Exec(_ context.Context, task engine.ExecTask) (*model.TestcaseResult, error) {
	e.mu.Lock()
	e.execCalls++
	e.execTasks = append(e.execTasks, task)
	e.mu.Unlock()
	if e.execFn != nil {
		return e.execFn(task)
	}
	return &model.TestcaseResult{Verdict: model.VerdictAccepted, ScoreRate: 1}, nil
}

func (e *fakeExecutor) calls() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileCalls, e.execCalls
}

func newTestStore(t *testing.T, objects map[string][]byte) *files.Store {
	t.Helper()
	store, err := files.NewStore(&fakeStorage{objects: objects}, "test-bucket", t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newTask(t *testing.T, sub *model.Submission, executor *fakeExecutor, reporter *captureReporter) (*judgers.Task, judgers.Judger, *progress.Tracker) {
	t.Helper()
	judger, ok := judgers.Resolve(sub.ProblemType)
	if !ok {
		t.Fatalf("no judger for %q", sub.ProblemType)
	}
	tracker := progress.NewTracker(context.Background(), sub.ID, reporter)
	tracker.SetHasher(judgers.Hasher(judger, sub))
	return &judgers.Task{
		Submission: sub,
		Files:      newTestStore(t, nil),
		Executor:   executor,
		Progress:   tracker,
	}, judger, tracker
}

func traditionalSubmission(judgeInfo string) *model.Submission {
	return &model.Submission{
		ID:          "sub-1",
		ProblemType: model.ProblemTypeTraditional,
		JudgeInfo:   json.RawMessage(judgeInfo),
		TestData: map[string]model.ContentID{
			"a.in": "cid-a-in", "a.out": "cid-a-out",
			"b.in": "cid-b-in", "b.out": "cid-b-out",
			"c.in": "cid-c-in", "c.out": "cid-c-out",
		},
		Content: model.SubmissionContent{Language: "cpp", Code: "int main() {}"},
	}
}

func TestTraditionalRunAllAccepted(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"testcases":[
		{"inputFile":"a.in","outputFile":"a.out"},
		{"inputFile":"b.in","outputFile":"b.out"}
	]}`)
	executor := &fakeExecutor{}
	reporter := &captureReporter{}
	task, judger, tracker := newTask(t, sub, executor, reporter)

	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !tracker.IsFinished() {
		t.Fatal("expected run to finish the tracker")
	}

	snap := reporter.snapshot()
	if snap.Status != model.StatusAccepted || snap.Score != 100 {
		t.Fatalf("expected Accepted with score 100, got %q score %v", snap.Status, snap.Score)
	}
	if snap.Compile == nil || !snap.Compile.Success {
		t.Fatalf("expected successful compile outcome, got %+v", snap.Compile)
	}
	compiles, execs := executor.calls()
	if compiles != 1 || execs != 2 {
		t.Fatalf("expected 1 compile and 2 execs, got %d and %d", compiles, execs)
	}
}

func TestTraditionalRunCompileFailure(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"testcases":[{"inputFile":"a.in","outputFile":"a.out"}]}`)
	executor := &fakeExecutor{
		compileFn: func(engine.CompileTask) (*engine.CompileResult, error) {
			return &engine.CompileResult{Success: false, Message: "syntax error on line 1"}, nil
		},
	}
	reporter := &captureReporter{}
	task, judger, _ := newTask(t, sub, executor, reporter)

	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}
	snap := reporter.snapshot()
	if snap.Status != model.StatusCompilationError || snap.Score != 0 {
		t.Fatalf("expected CompilationError with score 0, got %q score %v", snap.Status, snap.Score)
	}
	if snap.Compile == nil || snap.Compile.Success || snap.Compile.Message != "syntax error on line 1" {
		t.Fatalf("expected failed compile outcome, got %+v", snap.Compile)
	}
	if _, execs := executor.calls(); execs != 0 {
		t.Fatalf("expected no executions after compile failure, got %d", execs)
	}
}

func TestGroupMinSkipsRemainingAfterZero(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"subtasks":[{"scoringType":"GroupMin","testcases":[
		{"inputFile":"a.in","outputFile":"a.out"},
		{"inputFile":"b.in","outputFile":"b.out"},
		{"inputFile":"c.in","outputFile":"c.out"}
	]}]}`)
	executor := &fakeExecutor{
		execFn: func(engine.ExecTask) (*model.TestcaseResult, error) {
			return &model.TestcaseResult{Verdict: model.VerdictWrongAnswer, ScoreRate: 0}, nil
		},
	}
	reporter := &captureReporter{}
	task, judger, _ := newTask(t, sub, executor, reporter)

	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, execs := executor.calls(); execs != 1 {
		t.Fatalf("expected only the first case to execute, got %d", execs)
	}

	snap := reporter.snapshot()
	if snap.Status != model.StatusWrongAnswer || snap.Score != 0 {
		t.Fatalf("expected WrongAnswer with score 0, got %q score %v", snap.Status, snap.Score)
	}
	for i := 1; i < 3; i++ {
		data, err := json.Marshal(snap.Subtasks[0].Testcases[i])
		if err != nil {
			t.Fatalf("marshal slot: %v", err)
		}
		if string(data) != "{}" {
			t.Fatalf("expected testcase %d skipped, got %s", i, data)
		}
	}
}

func TestIdenticalTestcasesExecuteOnce(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"subtasks":[{"scoringType":"GroupMin","testcases":[
		{"inputFile":"a.in","outputFile":"a.out"},
		{"inputFile":"a.in","outputFile":"a.out"}
	]}]}`)
	executor := &fakeExecutor{
		execFn: func(engine.ExecTask) (*model.TestcaseResult, error) {
			return &model.TestcaseResult{Verdict: model.VerdictPartiallyCorrect, ScoreRate: 0.5}, nil
		},
	}
	reporter := &captureReporter{}
	task, judger, _ := newTask(t, sub, executor, reporter)

	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, execs := executor.calls(); execs != 1 {
		t.Fatalf("expected the second identical case to reuse the cached result, got %d execs", execs)
	}

	snap := reporter.snapshot()
	if snap.Status != model.StatusPartiallyCorrect || snap.Score != 50 {
		t.Fatalf("expected PartiallyCorrect with score 50, got %q score %v", snap.Status, snap.Score)
	}
	first := snap.Subtasks[0].Testcases[0].TestcaseHash
	second := snap.Subtasks[0].Testcases[1].TestcaseHash
	if first == "" || first != second {
		t.Fatalf("expected shared identity hash, got %q and %q", first, second)
	}
	if len(snap.TestcaseResults) != 1 {
		t.Fatalf("expected one shared result, got %d", len(snap.TestcaseResults))
	}
}

func TestEngineFailureAbsorbedAsJudgementFailed(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"testcases":[{"inputFile":"a.in","outputFile":"a.out"}]}`)
	executor := &fakeExecutor{
		execFn: func(engine.ExecTask) (*model.TestcaseResult, error) {
			return nil, appErr.Newf(appErr.JudgeEngineError, "sandbox unavailable")
		},
	}
	reporter := &captureReporter{}
	task, judger, tracker := newTask(t, sub, executor, reporter)

	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("expected per-case failure to be absorbed, got %v", err)
	}
	if !tracker.IsFinished() {
		t.Fatal("expected run to finish")
	}
	snap := reporter.snapshot()
	if snap.Status != model.StatusJudgementFailed {
		t.Fatalf("expected JudgementFailed, got %q", snap.Status)
	}
}

func TestCancellationEscapesWithoutFinishing(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"testcases":[{"inputFile":"a.in","outputFile":"a.out"}]}`)
	executor := &fakeExecutor{
		execFn: func(engine.ExecTask) (*model.TestcaseResult, error) {
			return nil, context.Canceled
		},
	}
	reporter := &captureReporter{}
	task, judger, tracker := newTask(t, sub, executor, reporter)

	err := judger.Run(context.Background(), task)
	if err == nil {
		t.Fatal("expected cancellation to escape")
	}
	if tracker.IsFinished() {
		t.Fatal("expected tracker to stay unfinished on cancellation")
	}
	if snap := reporter.snapshot(); snap.ProgressType == model.ProgressFinished {
		t.Fatalf("expected no terminal snapshot, got %q", snap.ProgressType)
	}
}

func TestSamplesAffectStatusNotScore(t *testing.T) {
	t.Parallel()
	sub := traditionalSubmission(`{"testcases":[{"inputFile":"a.in","outputFile":"a.out"}]}`)
	sub.Samples = []model.SampleData{{InputData: "cid-sample-in", OutputData: "cid-sample-out"}}
	// Samples run first, so the first exec call is the failing sample.
	failFirst := true
	executor := &fakeExecutor{
		execFn: func(engine.ExecTask) (*model.TestcaseResult, error) {
			if failFirst {
				failFirst = false
				return &model.TestcaseResult{Verdict: model.VerdictWrongAnswer, ScoreRate: 0}, nil
			}
			return &model.TestcaseResult{Verdict: model.VerdictAccepted, ScoreRate: 1}, nil
		},
	}
	reporter := &captureReporter{}
	task, judger, _ := newTask(t, sub, executor, reporter)

	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}
	snap := reporter.snapshot()
	if snap.Score != 100 {
		t.Fatalf("expected failed sample to leave score at 100, got %v", snap.Score)
	}
	if snap.Status != model.StatusWrongAnswer {
		t.Fatalf("expected failed sample to drag status to WrongAnswer, got %q", snap.Status)
	}
	if len(snap.Samples) != 1 {
		t.Fatalf("expected one sample slot, got %d", len(snap.Samples))
	}
}

func TestInteractionValidateRequiresInteractor(t *testing.T) {
	t.Parallel()
	sub := &model.Submission{
		ID:          "sub-2",
		ProblemType: model.ProblemTypeInteraction,
		JudgeInfo:   json.RawMessage(`{"testcases":[{"inputFile":"a.in"}]}`),
		TestData:    map[string]model.ContentID{"a.in": "cid-a-in"},
	}
	judger, ok := judgers.Resolve(model.ProblemTypeInteraction)
	if !ok {
		t.Fatal("no interaction judger registered")
	}
	if err := judger.ValidateJudgeInfo(sub); !appErr.Is(err, appErr.JudgeConfigurationError) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSubmitAnswerValidateRequiresSubmittedFile(t *testing.T) {
	t.Parallel()
	sub := &model.Submission{
		ID:          "sub-5",
		ProblemType: model.ProblemTypeSubmitAnswer,
		JudgeInfo:   json.RawMessage(`{"testcases":[{"outputFile":"a.out","userOutputFilename":"a.txt"}]}`),
		TestData:    map[string]model.ContentID{"a.out": "cid-a-out"},
	}
	judger, ok := judgers.Resolve(model.ProblemTypeSubmitAnswer)
	if !ok {
		t.Fatal("no submit-answer judger registered")
	}
	if err := judger.ValidateJudgeInfo(sub); !appErr.Is(err, appErr.JudgeConfigurationError) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	reporter := &captureReporter{}
	tracker := progress.NewTracker(context.Background(), sub.ID, reporter)
	tracker.SetHasher(judgers.Hasher(judger, sub))
	task := &judgers.Task{
		Submission: sub,
		Files:      newTestStore(t, nil),
		Executor:   &fakeExecutor{},
		Progress:   tracker,
	}
	if err := judger.Run(context.Background(), task); !appErr.Is(err, appErr.JudgeConfigurationError) {
		t.Fatalf("expected run to refuse a nil submitted file, got %v", err)
	}
}

func TestInteractionRunUsesInteractor(t *testing.T) {
	t.Parallel()
	sub := &model.Submission{
		ID:          "sub-2",
		ProblemType: model.ProblemTypeInteraction,
		JudgeInfo: json.RawMessage(`{
			"interactor":{"interface":"stdio","sourceFile":"interactor.cpp"},
			"testcases":[{"inputFile":"a.in"}]
		}`),
		TestData: map[string]model.ContentID{
			"a.in":           "cid-a-in",
			"interactor.cpp": "cid-interactor",
		},
		Content: model.SubmissionContent{Language: "cpp", Code: "int main() {}"},
	}
	executor := &fakeExecutor{}
	reporter := &captureReporter{}
	task, judger, _ := newTask(t, sub, executor, reporter)

	if err := judger.ValidateJudgeInfo(sub); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}

	executor.mu.Lock()
	execTask := executor.execTasks[0]
	executor.mu.Unlock()
	if execTask.Kind != engine.ExecInteractive {
		t.Fatalf("expected interactive execution, got %q", execTask.Kind)
	}
	if execTask.InteractorFile != task.Files.Path("cid-interactor") {
		t.Fatalf("expected staged interactor path, got %q", execTask.InteractorFile)
	}
	if snap := reporter.snapshot(); snap.Status != model.StatusAccepted {
		t.Fatalf("expected Accepted, got %q", snap.Status)
	}
}

func TestSubmitAnswerRunSkipsCompileAndSamples(t *testing.T) {
	t.Parallel()
	answers := []byte("42\n")
	sum := sha256.Sum256(answers)
	objects := map[string][]byte{"cid-answers": answers}

	sub := &model.Submission{
		ID:          "sub-3",
		ProblemType: model.ProblemTypeSubmitAnswer,
		JudgeInfo: json.RawMessage(`{"testcases":[
			{"outputFile":"a.out","userOutputFilename":"a.txt"}
		]}`),
		TestData: map[string]model.ContentID{"a.out": "cid-a-out"},
		Samples:  []model.SampleData{{InputData: "cid-s-in", OutputData: "cid-s-out"}},
		File: &model.FileMeta{
			ContentID: "cid-answers",
			Filename:  "answers.zip",
			SizeBytes: int64(len(answers)),
			SHA256:    hex.EncodeToString(sum[:]),
		},
	}

	judger, ok := judgers.Resolve(model.ProblemTypeSubmitAnswer)
	if !ok {
		t.Fatal("no submit-answer judger registered")
	}
	reporter := &captureReporter{}
	tracker := progress.NewTracker(context.Background(), sub.ID, reporter)
	tracker.SetHasher(judgers.Hasher(judger, sub))

	store := newTestStore(t, objects)
	submitted, err := store.FetchSubmitted(context.Background(), sub.File)
	if err != nil {
		t.Fatalf("fetch submitted: %v", err)
	}
	defer submitted.Dispose()

	executor := &fakeExecutor{}
	task := &judgers.Task{
		Submission: sub,
		Files:      store,
		Submitted:  submitted,
		Executor:   executor,
		Progress:   tracker,
	}
	if err := judger.Run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}

	compiles, execs := executor.calls()
	if compiles != 0 {
		t.Fatalf("expected no compile step, got %d", compiles)
	}
	if execs != 1 {
		t.Fatalf("expected one answer check, got %d", execs)
	}
	executor.mu.Lock()
	execTask := executor.execTasks[0]
	executor.mu.Unlock()
	if execTask.Kind != engine.ExecAnswerCheck {
		t.Fatalf("expected answer check execution, got %q", execTask.Kind)
	}
	if execTask.UserAnswerFile != submitted.Path() {
		t.Fatalf("expected submitted path %q, got %q", submitted.Path(), execTask.UserAnswerFile)
	}
	if execTask.UserAnswerMember != "a.txt" {
		t.Fatalf("expected archive member a.txt, got %q", execTask.UserAnswerMember)
	}

	snap := reporter.snapshot()
	if snap.Status != model.StatusAccepted || snap.Score != 100 {
		t.Fatalf("expected Accepted with score 100, got %q score %v", snap.Status, snap.Score)
	}
	if len(snap.Samples) != 0 {
		t.Fatalf("expected no sample slots for submit-answer, got %d", len(snap.Samples))
	}
	if snap.Compile != nil {
		t.Fatalf("expected no compile outcome, got %+v", snap.Compile)
	}
}
