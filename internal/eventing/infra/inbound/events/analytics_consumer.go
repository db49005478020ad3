package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedEvents "github.com/davicafu/orchestrix/internal/shared/domain/events"
	sharedUtils "github.com/davicafu/orchestrix/internal/shared/infra/utils"
)

// AnalyticsConsumer acumula los eventos publicados y los escribe por lotes en analítica.
type AnalyticsConsumer struct {
	repo      eventDomain.EventAnalyticsRepository
	batchSize int
	interval  time.Duration
	log       *zap.Logger

	mu  sync.Mutex
	buf []eventDomain.EventMessage
}

func NewAnalyticsConsumer(repo eventDomain.EventAnalyticsRepository, batchSize int, interval time.Duration, log *zap.Logger) *AnalyticsConsumer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &AnalyticsConsumer{repo: repo, batchSize: batchSize, interval: interval, log: log}
}

func (c *AnalyticsConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	var base sharedEvents.IntegrationEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		c.log.Warn("Failed to unmarshal integration event for analytics", zap.String("key", key), zap.Error(err))
		return
	}

	sharedUtils.UnmarshalAndHandle(c.log, base.Data, func(msg eventDomain.EventMessage) {
		c.mu.Lock()
		c.buf = append(c.buf, msg)
		full := len(c.buf) >= c.batchSize
		c.mu.Unlock()

		if full {
			c.Flush(ctx)
		}
	})
}

// Flush escribe lo acumulado. Un lote fallido se registra en el log y se descarta.
func (c *AnalyticsConsumer) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.buf
	c.buf = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := c.repo.LogBatch(ctx, batch); err != nil {
		c.log.Warn("Failed to log analytics batch", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	c.log.Debug("Analytics batch logged", zap.Int("count", len(batch)))
}

// Run vacía el buffer en cada intervalo y una vez más al parar.
func (c *AnalyticsConsumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}
