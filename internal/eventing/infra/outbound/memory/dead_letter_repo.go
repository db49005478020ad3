package memory

import (
	"context"
	"sync"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

// DeadLetterRepo es el almacén de dead letters en memoria para tests y ejecución local.
type DeadLetterRepo struct {
	mu      sync.RWMutex
	letters []eventDomain.DeadLetter
}

func NewDeadLetterRepo() *DeadLetterRepo {
	return &DeadLetterRepo{}
}

func (r *DeadLetterRepo) Save(ctx context.Context, dl eventDomain.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters = append(r.letters, dl)
	return nil
}

func (r *DeadLetterRepo) List(ctx context.Context, subscriptionID string, page sharedQuery.OffsetPagination) ([]eventDomain.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []eventDomain.DeadLetter
	for i := len(r.letters) - 1; i >= 0; i-- {
		if subscriptionID == "" || r.letters[i].SubscriptionID == subscriptionID {
			matched = append(matched, r.letters[i])
		}
	}
	page = page.Normalize()
	start, end := page.Window(len(matched))
	return matched[start:end], nil
}

var _ eventDomain.DeadLetterRepository = (*DeadLetterRepo)(nil)
