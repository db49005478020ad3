package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	"github.com/davicafu/orchestrix/pkg/metrics"
)

const abortGrace = 2 * time.Second

type job struct {
	def  sagaDomain.Definition
	inst *sagaDomain.Instance
}

// Worker ejecuta sagas en background desde una cola acotada.
type Worker struct {
	runner  *Runner
	queue   chan job
	workers int
	metrics *metrics.Metrics
	log     *zap.Logger

	wg    sync.WaitGroup
	abort context.CancelFunc
}

func NewWorker(runner *Runner, queueSize, workers int, m *metrics.Metrics, log *zap.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		runner:  runner,
		queue:   make(chan job, queueSize),
		workers: workers,
		metrics: m,
		log:     log,
		abort:   func() {},
	}
}

// Enqueue entrega una instancia a los workers sin bloquear. Si la cola está
// llena la instancia se marca fallida y se devuelve ErrQueueFull.
func (w *Worker) Enqueue(ctx context.Context, def sagaDomain.Definition, inst *sagaDomain.Instance) error {
	select {
	case w.queue <- job{def: def, inst: inst}:
		w.metrics.SetSagaQueueDepth(len(w.queue))
		return nil
	default:
		w.runner.Fail(ctx, inst, "queue full")
		return sagaDomain.ErrQueueFull
	}
}

// Start launches the workers. Cancelling ctx stops intake; in-flight sagas
// keep running until Shutdown aborts them.
func (w *Worker) Start(ctx context.Context) {
	runCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	w.abort = abort

	w.log.Info("Saga worker started", zap.Int("workers", w.workers), zap.Int("queue_size", cap(w.queue)))
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-w.queue:
					w.metrics.SetSagaQueueDepth(len(w.queue))
					w.runner.Execute(runCtx, j.def, j.inst)
				}
			}
		}()
	}
}

// Shutdown espera a las sagas en curso hasta que vence ctx y después las aborta.
// Las que siguen en cola se marcan fallidas. Llamar después de cancelar el contexto de Start.
func (w *Worker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		w.log.Warn("Saga worker shutdown timed out, aborting in-flight sagas")
		w.abort()
		select {
		case <-done:
		case <-time.After(abortGrace):
		}
	}
	w.abort()

	for {
		select {
		case j := <-w.queue:
			w.runner.Fail(context.Background(), j.inst, "shutdown before start")
		default:
			w.metrics.SetSagaQueueDepth(0)
			w.log.Info("Saga worker stopped")
			return err
		}
	}
}
