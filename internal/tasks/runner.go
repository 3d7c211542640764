// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tasks provides the shared background executor used for work that
// must not block or fail the request that spawned it: audit persistence,
// api key usage touches and webhook delivery attempts. Submitted tasks run
// to completion or log their own failure; they are never silently dropped,
// and the bounded queue keeps backpressure observable.
package tasks

import (
	"context"

	"github.com/zhenzou/executors"

	"github.com/rentworks/access-service/internal/logging"
)

type RunnerInterface interface {
	Submit(name string, fn func(context.Context)) error
	Shutdown(ctx context.Context) error
}

var _ RunnerInterface = (*Runner)(nil)

type Runner struct {
	executor executors.ScheduledExecutor
	logger   logging.LoggerInterface
}

type errorHandler struct {
	logger logging.LoggerInterface
}

func (h *errorHandler) CatchError(runnable executors.Runnable, err error) {
	h.logger.Errorf("background task failed: %v", err)
}

type rejectionHandler struct {
	logger logging.LoggerInterface
}

func (h *rejectionHandler) RejectExecution(runnable executors.Runnable, e executors.Executor) error {
	h.logger.Errorf("background task rejected, queue is full")
	return nil
}

// Submit dispatches fn onto the pool. The task name is only used for logging
// when submission fails.
func (r *Runner) Submit(name string, fn func(context.Context)) error {
	if err := r.executor.ExecuteFunc(fn); err != nil {
		r.logger.Errorf("failed to submit task %q: %v", name, err)
		return err
	}
	return nil
}

func (r *Runner) Shutdown(ctx context.Context) error {
	return r.executor.Shutdown(ctx)
}

func NewRunner(poolSize, queueLength int, logger logging.LoggerInterface) *Runner {
	return &Runner{
		executor: executors.NewPoolScheduleExecutor(
			executors.WithMaxConcurrent(poolSize),
			executors.WithMaxBlockingTasks(queueLength),
			executors.WithErrorHandler(&errorHandler{logger: logger}),
			executors.WithRejectionHandler(&rejectionHandler{logger: logger}),
		),
		logger: logger,
	}
}
