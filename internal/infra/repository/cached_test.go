package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/domain"
)

type fakeMemcache struct {
	items   map[string]*memcache.Item
	deleted []string
}

func newFakeMemcache() *fakeMemcache {
	return &fakeMemcache{items: map[string]*memcache.Item{}}
}

func (f *fakeMemcache) Get(key string) (*memcache.Item, error) {
	item, ok := f.items[key]
	if !ok {
		return nil, memcache.ErrCacheMiss
	}
	return item, nil
}

func (f *fakeMemcache) Set(item *memcache.Item) error {
	f.items[item.Key] = item
	return nil
}

func (f *fakeMemcache) Delete(key string) error {
	f.deleted = append(f.deleted, key)
	if _, ok := f.items[key]; !ok {
		return memcache.ErrCacheMiss
	}
	delete(f.items, key)
	return nil
}

type stubImageRepo struct {
	images map[string]domain.Image
	gets   int
}

func (s *stubImageRepo) List(ctx context.Context) ([]domain.Image, error) { return nil, nil }

func (s *stubImageRepo) Get(ctx context.Context, id string) (domain.Image, error) {
	s.gets++
	image, ok := s.images[id]
	if !ok {
		return domain.Image{}, domain.NotFoundError{Resource: "image", ID: id}
	}
	return image, nil
}

func (s *stubImageRepo) Create(ctx context.Context, image domain.Image) (domain.Image, error) {
	s.images[image.ID] = image
	return image, nil
}

func (s *stubImageRepo) Delete(ctx context.Context, id string) error {
	if _, ok := s.images[id]; !ok {
		return domain.NotFoundError{Resource: "image", ID: id}
	}
	delete(s.images, id)
	return nil
}

func (s *stubImageRepo) Ping(ctx context.Context) error { return nil }

func TestCachedGetServesSecondReadFromCache(t *testing.T) {
	inner := &stubImageRepo{images: map[string]domain.Image{
		"abc": {ID: "abc", Title: "Sunset", CreatedAt: time.Unix(1700000000, 0).UTC()},
	}}
	mc := newFakeMemcache()
	repo := NewCachedImageRepository(inner, mc)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		image, err := repo.Get(ctx, "abc")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if image.Title != "Sunset" {
			t.Fatalf("unexpected image %+v", image)
		}
	}
	if inner.gets != 1 {
		t.Fatalf("expected one backing read got %d", inner.gets)
	}
	if _, ok := mc.items[imageCacheKey("abc")]; !ok {
		t.Fatalf("image was not cached")
	}
}

func TestCachedDeleteEvictsEntry(t *testing.T) {
	inner := &stubImageRepo{images: map[string]domain.Image{"abc": {ID: "abc", Title: "Sunset"}}}
	mc := newFakeMemcache()
	repo := NewCachedImageRepository(inner, mc)

	ctx := context.Background()
	if _, err := repo.Get(ctx, "abc"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := repo.Delete(ctx, "abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := mc.items[imageCacheKey("abc")]; ok {
		t.Fatalf("cache entry survived delete")
	}

	if _, err := repo.Get(ctx, "abc"); !humayat.IsNotFound(err) {
		t.Fatalf("expected not found after delete got %v", err)
	}
	if inner.gets != 2 {
		t.Fatalf("expected read to fall through after delete, got %d backing reads", inner.gets)
	}
}

func TestCachedDeleteOfMissingStillEvicts(t *testing.T) {
	inner := &stubImageRepo{images: map[string]domain.Image{}}
	mc := newFakeMemcache()
	mc.items[imageCacheKey("gone")] = &memcache.Item{Key: imageCacheKey("gone"), Value: []byte(`{"ID":"gone"}`)}
	repo := NewCachedImageRepository(inner, mc)

	err := repo.Delete(context.Background(), "gone")
	if !humayat.IsNotFound(err) {
		t.Fatalf("expected not found got %v", err)
	}
	if len(mc.deleted) != 1 || mc.deleted[0] != imageCacheKey("gone") {
		t.Fatalf("expected eviction of %s got %v", imageCacheKey("gone"), mc.deleted)
	}
	if _, ok := mc.items[imageCacheKey("gone")]; ok {
		t.Fatalf("stale cache entry survived delete")
	}
}
