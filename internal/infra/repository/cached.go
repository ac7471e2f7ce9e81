package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/totegamma/humayat/internal/domain"
	"github.com/totegamma/humayat/internal/usecase"
)

const imageCacheTTL = 15 * 60 // seconds

// Memcache is the subset of *memcache.Client the cache uses.
type Memcache interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

// CachedImageRepository serves Get from memcached and falls through to the
// wrapped repository on a miss. Images never change after creation, so the
// only invalidation needed is on Delete.
type CachedImageRepository struct {
	usecase.ImageRepository
	mc Memcache
}

func NewCachedImageRepository(inner usecase.ImageRepository, mc Memcache) *CachedImageRepository {
	return &CachedImageRepository{ImageRepository: inner, mc: mc}
}

func imageCacheKey(id string) string {
	return "humayat:image:" + id
}

func (r *CachedImageRepository) Get(ctx context.Context, id string) (domain.Image, error) {
	key := imageCacheKey(id)

	item, err := r.mc.Get(key)
	if err == nil {
		var image domain.Image
		if err := json.Unmarshal(item.Value, &image); err == nil {
			return image, nil
		}
	} else if !errors.Is(err, memcache.ErrCacheMiss) {
		slog.DebugContext(
			ctx, "memcached get failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
			slog.String("module", "repository"),
		)
	}

	image, err := r.ImageRepository.Get(ctx, id)
	if err != nil {
		return domain.Image{}, err
	}

	if value, err := json.Marshal(image); err == nil {
		_ = r.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: imageCacheTTL})
	}
	return image, nil
}

func (r *CachedImageRepository) Delete(ctx context.Context, id string) error {
	err := r.ImageRepository.Delete(ctx, id)
	if derr := r.mc.Delete(imageCacheKey(id)); derr != nil && !errors.Is(derr, memcache.ErrCacheMiss) {
		slog.DebugContext(
			ctx, "memcached delete failed",
			slog.String("id", id),
			slog.String("error", derr.Error()),
			slog.String("module", "repository"),
		)
	}
	return err
}
