// Package service drives one judging run end to end: resolve the problem
// type, stage files, validate configuration, hand off to the judger and
// classify whatever comes back. The driver owns error classification; the
// judgers only ever see their own domain.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orbitoj/internal/common/mq"
	"orbitoj/internal/judge/engine"
	"orbitoj/internal/judge/files"
	"orbitoj/internal/judge/judgers"
	"orbitoj/internal/judge/model"
	"orbitoj/internal/judge/progress"
	appErr "orbitoj/pkg/errors"
	"orbitoj/pkg/utils/logger"
)

// JudgeService consumes judge tasks and runs them against the execution
// engine, reporting progress through the configured reporter.
type JudgeService struct {
	files    *files.Store
	executor engine.Executor
	reporter progress.Reporter
}

func NewJudgeService(store *files.Store, executor engine.Executor, reporter progress.Reporter) *JudgeService {
	return &JudgeService{files: store, executor: executor, reporter: reporter}
}

// HandleMessage decodes one queued judge task and runs it. Malformed
// payloads are logged and acknowledged; redelivering them can never
// succeed.
func (s *JudgeService) HandleMessage(ctx context.Context, msg *mq.Message) error {
	var task model.TaskMessage
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		logger.Error(ctx, "discarding malformed judge task", zap.Error(err), zap.String("message_id", msg.ID))
		return nil
	}
	if msg.ID != "" {
		ctx = context.WithValue(ctx, "trace_id", msg.ID)
	}
	return s.Judge(ctx, &task.Submission)
}

// Judge runs one submission to completion. It returns an error only on
// cancellation, so the queue layer can redeliver the task; every other
// failure is reported as the submission's final snapshot and swallowed.
func (s *JudgeService) Judge(ctx context.Context, sub *model.Submission) error {
	ctx = context.WithValue(ctx, "submission_id", sub.ID)
	tracker := progress.NewTracker(ctx, sub.ID, s.reporter)

	judger, ok := judgers.Resolve(sub.ProblemType)
	if !ok {
		tracker.FinishedWith(ctx, model.StatusConfigurationError, 0,
			fmt.Sprintf("unknown problem type %q", sub.ProblemType), "")
		return nil
	}

	if err := s.files.EnsureFiles(ctx, stagedIDs(sub)); err != nil {
		return s.finishFault(ctx, tracker, err)
	}

	var submitted *files.SubmittedFile
	if sub.File != nil {
		var err error
		submitted, err = s.files.FetchSubmitted(ctx, sub.File)
		if err != nil {
			return s.finishFault(ctx, tracker, err)
		}
		defer func() {
			if err := submitted.Dispose(); err != nil {
				logger.Warn(ctx, "failed to dispose submitted file", zap.Error(err))
			}
		}()
	}

	// The only place a validation failure is turned into a user-facing
	// configuration verdict. Judgers report structural problems as typed
	// errors and never decide submission status themselves.
	if err := judger.ValidateJudgeInfo(sub); err != nil {
		tracker.FinishedWith(ctx, model.StatusConfigurationError, 0, faultMessage(err), "")
		return nil
	}

	tracker.SetHasher(judgers.Hasher(judger, sub))

	err := judger.Run(ctx, &judgers.Task{
		Submission: sub,
		Files:      s.files,
		Submitted:  submitted,
		Executor:   s.executor,
		Progress:   tracker,
	})
	if err != nil {
		return s.finishFault(ctx, tracker, err)
	}
	if !tracker.IsFinished() {
		tracker.FinishedWith(ctx, model.StatusSystemError, 0, "",
			"judger returned without reporting a final result")
	}
	return nil
}

// finishFault classifies a judging failure. Cancellation propagates with no
// final snapshot so the task can be redelivered; configuration faults get a
// user-facing message; everything else is a system error.
func (s *JudgeService) finishFault(ctx context.Context, tracker *progress.Tracker, err error) error {
	if isCancellation(err) {
		return err
	}
	if appErr.Is(err, appErr.JudgeConfigurationError) {
		tracker.FinishedWith(ctx, model.StatusConfigurationError, 0, faultMessage(err), "")
		return nil
	}
	logger.Error(ctx, "judging failed", zap.Error(err))
	tracker.FinishedWith(ctx, model.StatusSystemError, 0, "", err.Error())
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// faultMessage extracts the user-facing message from a typed error.
func faultMessage(err error) string {
	if typed := appErr.GetError(err); typed != nil && typed.Message != "" {
		return typed.Message
	}
	return err.Error()
}

// stagedIDs collects every content id a run may read: all testdata plus the
// sample inputs and outputs.
func stagedIDs(sub *model.Submission) []model.ContentID {
	ids := make([]model.ContentID, 0, len(sub.TestData)+2*len(sub.Samples))
	for _, id := range sub.TestData {
		ids = append(ids, id)
	}
	for _, sample := range sub.Samples {
		ids = append(ids, sample.InputData, sample.OutputData)
	}
	return ids
}
