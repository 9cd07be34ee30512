// Package worker runs periodic maintenance jobs in the background.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one unit of periodic work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Worker runs its jobs once at start and then on every tick.
type Worker struct {
	interval time.Duration
	timeout  time.Duration
	jobs     []Job
}

// New creates a Worker running jobs every interval. Each run of a job is
// bounded by the same interval.
func New(interval time.Duration, jobs ...Job) *Worker {
	return &Worker{interval: interval, timeout: interval, jobs: jobs}
}

// Consume blocks until ctx is cancelled.
func (w *Worker) Consume(ctx context.Context) {
	logrus.WithField("interval", w.interval).Info("worker started")

	w.runAll(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("worker stopped: %v", ctx.Err())
			return
		case <-t.C:
			w.runAll(ctx)
		}
	}
}

func (w *Worker) runAll(ctx context.Context) {
	for _, job := range w.jobs {
		if ctx.Err() != nil {
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
		start := time.Now()
		err := job.Run(jobCtx)
		cancel()

		entry := logrus.WithFields(logrus.Fields{"job": job.Name, "duration": time.Since(start).String()})
		if err != nil {
			entry.WithError(err).Error("job failed")
			continue
		}
		entry.Debug("job finished")
	}
}
