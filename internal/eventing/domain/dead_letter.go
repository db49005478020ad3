package domain

import "time"

// DeadLetter registra una entrega que falló en su último intento.
type DeadLetter struct {
	ID             string        `json:"id"`
	EventID        string        `json:"eventId"`
	SubscriptionID string        `json:"subscriptionId"`
	EventType      string        `json:"eventType"`
	Error          string        `json:"error"`
	RetryCount     int           `json:"retryCount"`
	Event          *EventMessage `json:"event,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}
