package service_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"orbitoj/internal/common/mq"
	"orbitoj/internal/common/storage"
	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/files"
	"orbitoj/internal/judge/model"
	"orbitoj/internal/judge/service"
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
	execFn func(engine.ExecTask) (*model.TestcaseResult, error)

	mu       sync.Mutex
	compiles int
	execs    int
}

func (e *fakeExecutor) calls() (compiles, execs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compiles, e.execs
}

func (e *fakeExecutor) Compile(_ context.Context, _ engine.CompileTask) (*engine.CompileResult, error) {
	e.mu.Lock()
	e.compiles++
	e.mu.Unlock()
	return &engine.CompileResult{Success: true, ArtifactID: "artifact-1"}, nil
}

func (e *fakeExecutor) Exec(_ context.Context, task engine.ExecTask) (*model.TestcaseResult, error) {
	e.mu.Lock()
	e.execs++
	e.mu.Unlock()
	if e.execFn != nil {
		return e.execFn(task)
	}
	return &model.TestcaseResult{Verdict: model.VerdictAccepted, ScoreRate: 1}, nil
}

type fixture struct {
	svc      *service.JudgeService
	reporter *captureReporter
	root     string
}

func newFixture(t *testing.T, objects map[string][]byte, executor *fakeExecutor) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := files.NewStore(&fakeStorage{objects: objects}, "test-bucket", root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reporter := &captureReporter{}
	return &fixture{
		svc:      service.NewJudgeService(store, executor, reporter),
		reporter: reporter,
		root:     root,
	}
}

func traditionalSubmission() *model.Submission {
	return &model.Submission{
		ID:          "sub-1",
		ProblemType: model.ProblemTypeTraditional,
		JudgeInfo:   json.RawMessage(`{"testcases":[{"inputFile":"a.in","outputFile":"a.out"}]}`),
		TestData:    map[string]model.ContentID{"a.in": "cid-a-in", "a.out": "cid-a-out"},
		Content:     model.SubmissionContent{Language: "cpp", Code: "int main() {}"},
	}
}

func testObjects() map[string][]byte {
	return map[string][]byte{
		"cid-a-in":  []byte("1 2\n"),
		"cid-a-out": []byte("3\n"),
	}
}

func TestJudgeSuccessfulRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testObjects(), &fakeExecutor{})

	if err := f.svc.Judge(context.Background(), traditionalSubmission()); err != nil {
		t.Fatalf("judge: %v", err)
	}
	snap := f.reporter.snapshot()
	if snap.ProgressType != model.ProgressFinished {
		t.Fatalf("expected Finished, got %q", snap.ProgressType)
	}
	if snap.Status != model.StatusAccepted || snap.Score != 100 {
		t.Fatalf("expected Accepted with score 100, got %q score %v", snap.Status, snap.Score)
	}
}

func TestJudgeUnknownProblemType(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, &fakeExecutor{})
	sub := traditionalSubmission()
	sub.ProblemType = "quantum"

	if err := f.svc.Judge(context.Background(), sub); err != nil {
		t.Fatalf("judge: %v", err)
	}
	snap := f.reporter.snapshot()
	if snap.Status != model.StatusConfigurationError {
		t.Fatalf("expected ConfigurationError, got %q", snap.Status)
	}
	if !strings.Contains(snap.Message, "quantum") {
		t.Fatalf("expected message to name the problem type, got %q", snap.Message)
	}
}

func TestJudgeValidationFailureIsConfigurationError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testObjects(), &fakeExecutor{})
	sub := traditionalSubmission()
	sub.JudgeInfo = json.RawMessage(`{"testcases":[{"inputFile":"missing.in","outputFile":"a.out"}]}`)

	if err := f.svc.Judge(context.Background(), sub); err != nil {
		t.Fatalf("judge: %v", err)
	}
	snap := f.reporter.snapshot()
	if snap.Status != model.StatusConfigurationError {
		t.Fatalf("expected ConfigurationError, got %q", snap.Status)
	}
	if !strings.Contains(snap.Message, "missing.in") {
		t.Fatalf("expected message to name the missing file, got %q", snap.Message)
	}
	if snap.SystemMessage != "" {
		t.Fatalf("expected no system message for a user-facing fault, got %q", snap.SystemMessage)
	}
}

func TestJudgeSubmitAnswerWithoutFileIsConfigurationError(t *testing.T) {
	t.Parallel()
	executor := &fakeExecutor{}
	f := newFixture(t, map[string][]byte{"cid-a-out": []byte("42\n")}, executor)

	sub := &model.Submission{
		ID:          "sub-4",
		ProblemType: model.ProblemTypeSubmitAnswer,
		JudgeInfo:   json.RawMessage(`{"testcases":[{"outputFile":"a.out","userOutputFilename":"a.txt"}]}`),
		TestData:    map[string]model.ContentID{"a.out": "cid-a-out"},
	}
	if err := f.svc.Judge(context.Background(), sub); err != nil {
		t.Fatalf("judge: %v", err)
	}
	snap := f.reporter.snapshot()
	if snap.Status != model.StatusConfigurationError {
		t.Fatalf("expected ConfigurationError, got %q", snap.Status)
	}
	if !strings.Contains(snap.Message, "submitted answer file") {
		t.Fatalf("expected message to name the missing submitted file, got %q", snap.Message)
	}
	if snap.SystemMessage != "" {
		t.Fatalf("expected no system message for a user-facing fault, got %q", snap.SystemMessage)
	}
	if _, execs := executor.calls(); execs != 0 {
		t.Fatalf("expected no executions without a submitted file, got %d", execs)
	}
}

func TestJudgeStagingFailureIsSystemError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, &fakeExecutor{})

	if err := f.svc.Judge(context.Background(), traditionalSubmission()); err != nil {
		t.Fatalf("judge: %v", err)
	}
	snap := f.reporter.snapshot()
	if snap.Status != model.StatusSystemError {
		t.Fatalf("expected SystemError, got %q", snap.Status)
	}
	if snap.SystemMessage == "" {
		t.Fatal("expected a diagnostic system message")
	}
}

func TestJudgeCancellationPropagatesUnreported(t *testing.T) {
	t.Parallel()
	executor := &fakeExecutor{
		execFn: func(engine.ExecTask) (*model.TestcaseResult, error) {
			return nil, context.Canceled
		},
	}
	f := newFixture(t, testObjects(), executor)

	if err := f.svc.Judge(context.Background(), traditionalSubmission()); err == nil {
		t.Fatal("expected cancellation to propagate")
	}
	if snap := f.reporter.snapshot(); snap.ProgressType == model.ProgressFinished {
		t.Fatalf("expected no terminal snapshot on cancellation, got %q", snap.ProgressType)
	}
}

func TestJudgeDisposesSubmittedFile(t *testing.T) {
	t.Parallel()
	answers := []byte("42\n")
	sum := sha256.Sum256(answers)
	objects := map[string][]byte{
		"cid-a-out":   []byte("42\n"),
		"cid-answers": answers,
	}
	f := newFixture(t, objects, &fakeExecutor{})

	sub := &model.Submission{
		ID:          "sub-3",
		ProblemType: model.ProblemTypeSubmitAnswer,
		JudgeInfo:   json.RawMessage(`{"testcases":[{"outputFile":"a.out","userOutputFilename":"a.txt"}]}`),
		TestData:    map[string]model.ContentID{"a.out": "cid-a-out"},
		File: &model.FileMeta{
			ContentID: "cid-answers",
			Filename:  "answers.zip",
			SizeBytes: int64(len(answers)),
			SHA256:    hex.EncodeToString(sum[:]),
		},
	}
	if err := f.svc.Judge(context.Background(), sub); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if snap := f.reporter.snapshot(); snap.Status != model.StatusAccepted {
		t.Fatalf("expected Accepted, got %q", snap.Status)
	}

	entries, err := os.ReadDir(f.root)
	if err != nil {
		t.Fatalf("read staging root: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "submitted-") {
			t.Fatalf("expected submitted scratch dir to be disposed, found %s",
				filepath.Join(f.root, entry.Name()))
		}
	}
}

func TestHandleMessageDiscardsMalformedPayload(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, &fakeExecutor{})

	msg := mq.NewMessage([]byte("{not json"))
	if err := f.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("expected malformed payload to be acknowledged, got %v", err)
	}
	if f.reporter.snapshot() != nil {
		t.Fatal("expected no snapshot for a discarded message")
	}
}

func TestHandleMessageRunsDecodedTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testObjects(), &fakeExecutor{})

	body, err := json.Marshal(model.TaskMessage{Submission: *traditionalSubmission()})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	msg := mq.NewMessage(body)
	msg.ID = "msg-1"
	if err := f.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	snap := f.reporter.snapshot()
	if snap == nil || snap.Status != model.StatusAccepted {
		t.Fatalf("expected Accepted run from queue message, got %+v", snap)
	}
}
