package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 200 * time.Millisecond

// AsyncCacheSet actualiza la caché en background sin bloquear al llamante.
func AsyncCacheSet(ctx context.Context, cache Cache, key string, value interface{}, ttl int, log *zap.Logger) {
	if cache == nil {
		return
	}

	go func() {
		// el contexto de la petición puede haber terminado ya
		cacheCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := cache.Set(cacheCtx, key, value, ttl); err != nil {
			log.Warn("Cache update failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}()
}

// SyncCacheSet escribe en caché con un timeout corto, para cuando importa el
// orden de las escrituras. Si la escritura falla se borra la clave: una
// entrada ausente obliga a leer del repositorio, una antigua no.
func SyncCacheSet(ctx context.Context, cache Cache, key string, value interface{}, ttl int, log *zap.Logger) {
	if cache == nil {
		return
	}

	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := cache.Set(cacheCtx, key, value, ttl); err != nil {
		log.Warn("Cache write-through failed, evicting key",
			zap.String("key", key),
			zap.Error(err))
		evict(ctx, cache, key, log)
	}
}

// AsyncCacheDelete elimina una clave en background.
func AsyncCacheDelete(ctx context.Context, cache Cache, key string, log *zap.Logger) {
	if cache == nil {
		return
	}

	go evict(ctx, cache, key, log)
}

func evict(ctx context.Context, cache Cache, key string, log *zap.Logger) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := cache.Delete(cacheCtx, key); err != nil {
		log.Warn("Cache deletion failed",
			zap.String("key", key),
			zap.Error(err))
	}
}
