// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tasks

import (
	"context"
)

var _ RunnerInterface = (*SyncRunner)(nil)

// SyncRunner executes submitted tasks inline. It exists for tests, where
// asynchronous dispatch only adds flakiness.
type SyncRunner struct{}

func NewSyncRunner() *SyncRunner {
	return &SyncRunner{}
}

func (r *SyncRunner) Submit(name string, fn func(context.Context)) error {
	fn(context.Background())
	return nil
}

func (r *SyncRunner) Shutdown(ctx context.Context) error {
	return nil
}
