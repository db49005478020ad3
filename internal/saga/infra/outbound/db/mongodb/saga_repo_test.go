package mongodb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
)

func TestCriteriaToMongoFilter(t *testing.T) {
	filter := criteriaToMongoFilter(sharedDomain.And(
		sagaDomain.StatusCriteria{Status: sagaDomain.SagaCompensated},
		sagaDomain.NameCriteria{Name: sagaDomain.OrderFulfillment},
		sagaDomain.StatusCriteria{},
	))

	assert.Equal(t, bson.D{
		{Key: "status", Value: bson.M{"$eq": "compensated"}},
		{Key: "sagaName", Value: bson.M{"$eq": sagaDomain.OrderFulfillment}},
	}, filter)
	assert.Empty(t, criteriaToMongoFilter(nil))
}

func TestInstanceMappingKeepsNestedInputAndResults(t *testing.T) {
	def := sagaDomain.DefaultDefinitions()[0]
	inst := sagaDomain.NewInstance(def, map[string]interface{}{
		"orderId": "O1",
		"items":   []interface{}{map[string]interface{}{"sku": "A"}},
	}, "corr", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	inst.Steps[0].Status = sagaDomain.StepCompleted
	inst.Steps[0].Result = json.RawMessage(`{"reservationId":"R1"}`)

	doc, err := toMongoInstance(inst)
	require.NoError(t, err)
	back, err := fromMongoInstance(doc)
	require.NoError(t, err)

	assert.Equal(t, inst.ID, back.ID)
	assert.Equal(t, "O1", back.Input["orderId"])
	items, ok := back.Input["items"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "A", items[0].(map[string]interface{})["sku"])
	assert.JSONEq(t, `{"reservationId":"R1"}`, string(back.Steps[0].Result))
	assert.Nil(t, back.Steps[1].Result)
}
