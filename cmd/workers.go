/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/autopost/autopost"
	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/internal/trigger"
	"github.com/autopost/autopost/model"
)

// processCycle runs one cycle for a task taken from the cycle queue.
// A task that finds another cycle running is dropped: the running cycle already covers it.
func (b *autopostInstance) processCycle(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("autopost.worker").Start(ctx, "Process Cycle From Redis Queue")
	defer span.End()

	var payload autopost.CyclePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return fmt.Errorf("decode cycle payload: %v: %w", err, asynq.SkipRetry)
	}

	report, err := b.runner.Run(ctx, trigger.Options{Reason: payload.Reason})
	if errors.Is(err, trigger.ErrCycleInProgress) {
		logrus.WithField("reason", payload.Reason).Info("cycle skipped, another one is running")
		return nil
	}
	if err != nil {
		return err
	}

	counts := report.Counts()
	logrus.WithFields(logrus.Fields{
		"reason":    payload.Reason,
		"published": counts[model.StatusPublished],
		"simulated": counts[model.StatusSimulated],
		"failed":    counts[model.StatusFailed],
	}).Info(" [*] Cycle processed")
	return nil
}

func initializeQueues() map[string]int {
	return map[string]int{
		autopost.CYCLE_QUEUE:   2,
		autopost.WEBHOOK_QUEUE: 1,
	}
}

func initializeWorkerServer(redisOpt asynq.RedisClientOpt, queues map[string]int) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      queues,
	})
}

func initializeTaskHandlers(b *autopostInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(autopost.CYCLE_QUEUE, b.processCycle)
	mux.HandleFunc(autopost.WEBHOOK_QUEUE, autopost.ProcessWebhook)
}

// uniqueWindow is how long a scheduled cycle task blocks duplicates. Runs missed while
// a cycle is pending collapse into that one task.
func uniqueWindow(s config.SchedulerConfig, now time.Time) time.Duration {
	schedule, err := s.Schedule()
	if err != nil {
		return time.Minute
	}
	next := schedule.Next(now.In(s.Location()))
	window := schedule.Next(next).Sub(next)
	if window < time.Second {
		return time.Second
	}
	return window
}

func initializeScheduler(redisOpt asynq.RedisClientOpt, cfg *config.Configuration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: cfg.Scheduler.Location(),
	})

	payload, err := json.Marshal(autopost.CyclePayload{Reason: "schedule"})
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(autopost.CYCLE_QUEUE, payload)
	entryID, err := scheduler.Register(cfg.Scheduler.CronSpec(), task,
		asynq.Queue(autopost.CYCLE_QUEUE),
		asynq.MaxRetry(0),
		asynq.Unique(uniqueWindow(cfg.Scheduler, time.Now())),
	)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"entry_id": entryID,
		"spec":     cfg.Scheduler.CronSpec(),
		"timezone": cfg.Scheduler.Location().String(),
	}).Info("cycle schedule registered")
	return scheduler, nil
}

// workerCommands starts the scheduler and the worker that executes cycles and webhooks.
func workerCommands(b *autopostInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the scheduler and autopost workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := b.cnf
			if b.queue == nil {
				log.Fatal("workers need redis: set redis.dns or AUTOPOST_REDIS_DNS")
			}

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			redisOpt, err := autopost.RedisClientOpt(conf)
			if err != nil {
				log.Fatalf("error parsing Redis URL: %v", err)
			}

			srv := initializeWorkerServer(redisOpt, initializeQueues())
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			scheduler, err := initializeScheduler(redisOpt, conf)
			if err != nil {
				log.Fatalf("could not register schedule: %v", err)
			}
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			if conf.Scheduler.RunsInitially() {
				if _, err := b.queue.EnqueueCycle(ctx, "startup"); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
					logrus.WithError(err).Warn("could not enqueue the initial cycle")
				}
			}

			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOpt,
			})
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Scheduler.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
