// Copyright 2026 Rentworks Ltd.
// SPDX-License-Identifier: AGPL-3.0

package webhooks

import (
	"context"
	"sync"
	"time"

	"github.com/rentworks/access-service/internal/logging"
	"github.com/rentworks/access-service/internal/tasks"
	"github.com/rentworks/access-service/internal/tracing"
)

// pendingGrace is how long a pending delivery is left to its immediate
// first attempt before the scheduler considers it abandoned and picks it
// up. Without it the poller would race the in-flight initial dispatch.
const pendingGrace = time.Minute

// Scheduler drives retries. It periodically sweeps storage for deliveries
// that are due (retrying past their next attempt time, or pending ones
// whose initial attempt was lost to a crash) and resubmits them. The claim
// in storage keeps a sweep that overlaps a live attempt harmless.
type Scheduler struct {
	storage StorageInterface
	service *Service
	runner  tasks.RunnerInterface
	config  Config

	tracer tracing.TracingInterface
	logger logging.LoggerInterface

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(context.Background())
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "webhooks.Scheduler.sweep")
	defer span.End()

	now := time.Now()
	due, err := s.storage.ListDueDeliveries(ctx, now, now.Add(-pendingGrace), uint64(s.config.PollBatchSize))
	if err != nil {
		s.logger.Errorf("unable to list due deliveries: %v", err)
		return
	}

	for _, delivery := range due {
		deliveryID := delivery.ID
		_ = s.runner.Submit("webhooks.retry-attempt", func(ctx context.Context) {
			s.service.Attempt(ctx, deliveryID)
		})
	}
}

// Stop halts the sweep loop and waits for it to exit. In-flight attempts
// submitted to the runner drain with the runner, not here.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func NewScheduler(storage StorageInterface, service *Service, runner tasks.RunnerInterface, config Config, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Scheduler {
	return &Scheduler{
		storage: storage,
		service: service,
		runner:  runner,
		config:  config,
		tracer:  tracer,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}
