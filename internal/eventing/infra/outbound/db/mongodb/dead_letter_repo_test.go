package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
)

func TestDeadLetterDocumentMapping(t *testing.T) {
	dl := eventDomain.DeadLetter{
		ID: "dl-1", EventID: "evt-1", SubscriptionID: "sub-1", EventType: eventDomain.OrderCreated,
		Error: "HTTP 500: boom", RetryCount: 3, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Event: &eventDomain.EventMessage{ID: "evt-1", Data: map[string]interface{}{"orderId": "O1"}},
	}

	doc, err := toMongoDeadLetter(dl)
	require.NoError(t, err)
	back, err := fromMongoDeadLetter(doc)
	require.NoError(t, err)

	assert.Equal(t, dl.RetryCount, back.RetryCount)
	require.NotNil(t, back.Event)
	assert.Equal(t, "O1", back.Event.Data["orderId"])
}

func TestDeadLetterDocumentMapping_NoEvent(t *testing.T) {
	doc, err := toMongoDeadLetter(eventDomain.DeadLetter{ID: "dl-2"})
	require.NoError(t, err)
	assert.Empty(t, doc.Event)

	back, err := fromMongoDeadLetter(doc)
	require.NoError(t, err)
	assert.Nil(t, back.Event)
}
