package bus

import "context"

// Keyer permite a un evento elegir su clave de partición.
type Keyer interface {
	PartitionKey() string
}

// Router permite a un evento elegir su topic de destino. Los adaptadores usan su topic por defecto si no.
type Router interface {
	TopicName() string
}

// El nombre del topic y el formato del payload los deciden los adaptadores.
type EventBus interface {
	Publish(ctx context.Context, event interface{}) error
}
