package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/errors"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor runs workers with a one-for-one strategy: each worker is
// watched independently and a crashed worker is restarted alone,
// without touching its siblings.
type Supervisor struct {
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval}
}

var _ contract.ISupervisor = (*Supervisor)(nil)

// Add registers workers to be started by Run.
func (s *Supervisor) Add(workers ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, workers...)
	return s
}

// Run starts every registered worker and blocks until all of them
// terminated. The given context bounds the whole supervision tree.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}

	s.wg.Wait()
}

// Start supervises a single worker until it returns nil or the
// context is cancelled. A panic is converted into ErrWorkerPanic and
// counts as a crash.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panicked",
							slog.String("worker", name),
							slog.Any("panic", r))
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info("Worker stopped", slog.String("worker", name))
				return
			}

			if ctx.Err() != nil {
				return
			}

			s.log.Error("Worker crashed, restarting",
				slog.String("worker", name),
				slog.Any("error", err))

			select {
			case <-time.After(s.restartInterval):
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the supervised context. Workers observe the
// cancellation through their Run context.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
