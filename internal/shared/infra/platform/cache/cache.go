package cache

import (
	"context"
)

// Cache es una caché genérica clave/valor con valores JSON.
type Cache interface {
	// Get rellena dest (un puntero) con el valor guardado en key.
	// Devuelve (true, nil) si hay acierto y (false, nil) si no.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set serializa y guarda val con un TTL en segundos. ttlSecs <= 0 usa el del adaptador.
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error

	Delete(ctx context.Context, key string) error
}
