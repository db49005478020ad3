package domain

import (
	"reflect"

	sharedEvents "github.com/davicafu/orchestrix/internal/shared/domain/events"
)

const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
	PaymentProcessed   = "payment.processed"
	InventoryUpdated   = "inventory.updated"
	ShipmentCreated    = "shipment.created"
	VendorRegistered   = "vendor.registered"
)

const (
	OrdersExchange    = "orders"
	PaymentsExchange  = "payments"
	InventoryExchange = "inventory"
	ShippingExchange  = "shipping"
	VendorsExchange   = "vendors"
)

const schemaVersion = "1.0.0"

var (
	defaultRetention  = RetentionPolicy{MaxAgeMs: 7 * 24 * 60 * 60 * 1000, MaxEvents: 10000}
	defaultDeadLetter = DeadLetterPolicy{Enabled: true, MaxRetries: 3, RetryDelayMs: 5000}
)

func definition(eventType, exchange string, consumers []string, required ...string) EventDefinition {
	return EventDefinition{
		EventType:  eventType,
		Schema:     Schema{Version: schemaVersion, Required: required},
		Routing:    Routing{Exchange: exchange, RoutingKey: eventType, Consumers: consumers},
		Retention:  defaultRetention,
		DeadLetter: defaultDeadLetter,
	}
}

// DefaultDefinitions es el catálogo de eventos de la plataforma.
func DefaultDefinitions() []EventDefinition {
	return []EventDefinition{
		definition(OrderCreated, OrdersExchange,
			[]string{"inventory-service", "payment-service", "notification-service"},
			"orderId", "customerId", "vendorId", "items", "totalAmount"),
		definition(OrderStatusChanged, OrdersExchange,
			[]string{"notification-service", "analytics-service"},
			"orderId", "previousStatus", "newStatus"),
		definition(PaymentProcessed, PaymentsExchange,
			[]string{"order-service", "payout-service"},
			"paymentId", "orderId", "amount", "status"),
		definition(InventoryUpdated, InventoryExchange,
			[]string{"catalog-service", "analytics-service"},
			"productId", "vendorId", "quantity", "operation"),
		definition(ShipmentCreated, ShippingExchange,
			[]string{"order-service", "notification-service"},
			"shipmentId", "orderId", "courier", "trackingNumber"),
		definition(VendorRegistered, VendorsExchange,
			[]string{"store-service", "notification-service"},
			"vendorId", "storeName", "email"),
	}
}

// NewEventRegistry asocia cada tipo de evento con su sobre y su topic para el relayer.
func NewEventRegistry(defs *DefinitionRegistry) map[string]sharedEvents.EventMetadata {
	registry := make(map[string]sharedEvents.EventMetadata, defs.Len())
	for _, d := range defs.All() {
		registry[d.EventType] = sharedEvents.EventMetadata{
			Type:  reflect.TypeOf(EventMessage{}),
			Topic: d.Routing.Exchange,
		}
	}
	return registry
}
