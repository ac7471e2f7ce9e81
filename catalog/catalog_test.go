package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/humayat"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func jpegOfSize(n int) humayat.Upload {
	data := make([]byte, n)
	copy(data, jpegHeader)
	return humayat.Upload{Filename: "photo.jpg", ContentType: "image/jpeg", Data: data}
}

// fakeStore is an in-memory Store. Hooks override individual calls.
type fakeStore struct {
	mu      sync.Mutex
	images  map[string]humayat.Image
	clock   time.Time
	seq     int
	calls   int32
	listErr error

	onCreate func(title, attribution string) (humayat.Image, error)
	onDelete func(id string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		images: make(map[string]humayat.Image),
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) List(ctx context.Context) ([]humayat.Image, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]humayat.Image, 0, len(s.images))
	for _, image := range s.images {
		out = append(out, image)
	}
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (humayat.Image, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.images[id]
	if !ok {
		return humayat.Image{}, humayat.NotFoundError{Resource: "image", ID: id}
	}
	return image, nil
}

func (s *fakeStore) Create(ctx context.Context, upload humayat.Upload, title, attribution string) (humayat.Image, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.onCreate != nil {
		return s.onCreate(title, attribution)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.clock = s.clock.Add(time.Minute)
	image := humayat.Image{
		ID:         fmt.Sprintf("img-%d", s.seq),
		Title:      title,
		UploadedBy: attribution,
		CreatedAt:  s.clock,
	}
	s.images[image.ID] = image
	return image, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	atomic.AddInt32(&s.calls, 1)
	if s.onDelete != nil {
		return s.onDelete(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return humayat.NotFoundError{Resource: "image", ID: id}
	}
	delete(s.images, id)
	return nil
}

func (s *fakeStore) seed(images ...humayat.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, image := range images {
		s.images[image.ID] = image
	}
}

func (s *fakeStore) Calls() int32 {
	return atomic.LoadInt32(&s.calls)
}

type staticName string

func (n staticName) Attribution() string { return string(n) }

func newReadyCatalog(t *testing.T, store *fakeStore, attribution AttributionSource) (*Catalog, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	c := New(store, Options{Notifier: rec, Attribution: attribution})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Load(context.Background()))
	rec.Drain()
	return c, rec
}

func titles(images []humayat.Image) []string {
	out := make([]string, len(images))
	for i, image := range images {
		out[i] = image.Title
	}
	return out
}

func TestLoadOrdersNewestFirst(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.seed(
		humayat.Image{ID: "a", Title: "old", CreatedAt: base},
		humayat.Image{ID: "b", Title: "new", CreatedAt: base.Add(2 * time.Hour)},
		humayat.Image{ID: "c", Title: "mid", CreatedAt: base.Add(time.Hour)},
	)

	c := New(store, Options{Notifier: &Recorder{}})
	assert.Equal(t, StateLoading, c.State())

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, []string{"new", "mid", "old"}, titles(c.Photos()))
}

func TestLoadFailureLeavesReadyEmpty(t *testing.T) {
	store := newFakeStore()
	store.listErr = &humayat.TransportError{Op: "list images", Attempts: 3, Err: errors.New("connection refused")}

	rec := &Recorder{}
	c := New(store, Options{Notifier: rec})

	err := c.Load(context.Background())
	require.True(t, humayat.IsTransport(err))
	assert.Equal(t, StateReady, c.State())
	assert.Empty(t, c.Photos())

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelError, notices[0].Level)
}

func TestRefreshKeepsStaleDataOnFailure(t *testing.T) {
	store := newFakeStore()
	store.seed(humayat.Image{ID: "a", Title: "kept", CreatedAt: time.Now()})
	c, rec := newReadyCatalog(t, store, nil)

	store.listErr = &humayat.UpstreamServiceError{Service: "humayat", StatusCode: 500}
	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"kept"}, titles(c.Photos()))
	assert.Len(t, rec.Notices(), 1)
}

func TestDeleteTwiceIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.seed(humayat.Image{ID: "abc", Title: "x", CreatedAt: time.Now()})
	c, rec := newReadyCatalog(t, store, nil)
	require.Equal(t, 1, c.Len())

	ctx := context.Background()
	require.NoError(t, c.Delete(ctx, "abc"))
	callsAfterFirst := store.Calls()

	require.NoError(t, c.Delete(ctx, "abc"))
	assert.Equal(t, callsAfterFirst, store.Calls(), "second delete must not reach the store")
	assert.Zero(t, c.Len())

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelSuccess, notices[0].Level)
}

func TestUploadsKeepNewestFirst(t *testing.T) {
	store := newFakeStore()
	store.seed(humayat.Image{ID: "seed", Title: "seed", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	c, _ := newReadyCatalog(t, store, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.Upload(ctx, jpegOfSize(1024), fmt.Sprintf("photo %d", i))
		require.NoError(t, err)

		photos := c.Photos()
		for j := 1; j < len(photos); j++ {
			assert.False(t, photos[j].CreatedAt.After(photos[j-1].CreatedAt),
				"record %d is newer than its predecessor", j)
		}
	}
	assert.Equal(t, "photo 4", c.Photos()[0].Title)
}

func TestOversizedUploadNeverReachesStore(t *testing.T) {
	store := newFakeStore()
	c, rec := newReadyCatalog(t, store, nil)
	before := c.Photos()
	calls := store.Calls()

	_, err := c.Upload(context.Background(), jpegOfSize(12<<20), "huge")
	require.True(t, humayat.IsValidation(err))

	assert.Equal(t, calls, store.Calls())
	assert.Equal(t, before, c.Photos())

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelError, notices[0].Level)
	assert.True(t, humayat.IsValidation(notices[0].Err))
}

func TestUnsupportedTypeNeverReachesStore(t *testing.T) {
	store := newFakeStore()
	c, rec := newReadyCatalog(t, store, nil)
	calls := store.Calls()

	_, err := c.Upload(context.Background(), humayat.Upload{ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, "doc")
	require.True(t, humayat.IsValidation(err))
	assert.Equal(t, calls, store.Calls())
	assert.Len(t, rec.Notices(), 1)
}

func TestSearchIsPure(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)
	ctx := context.Background()
	for _, title := range []string{"Sunset", "Dawn", "sunny day"} {
		_, err := c.Upload(ctx, jpegOfSize(64), title)
		require.NoError(t, err)
	}

	before := c.Photos()
	calls := store.Calls()

	assert.Equal(t, before, c.Search(""))
	assert.Equal(t, []string{"sunny day", "Sunset"}, titles(c.Search("SUN")))
	assert.Empty(t, c.Search("night"))

	assert.Equal(t, before, c.Photos())
	assert.Equal(t, calls, store.Calls())
}

func TestConfirmedUploadInsertedAtHead(t *testing.T) {
	store := newFakeStore()
	c, rec := newReadyCatalog(t, store, nil)

	image, err := c.Upload(context.Background(), jpegOfSize(2<<20), "test")
	require.NoError(t, err)

	photos := c.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "test", photos[0].Title)
	assert.Equal(t, image.ID, photos[0].ID)

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelSuccess, notices[0].Level)
}

func TestDeleteAlreadyRemovedServerSide(t *testing.T) {
	store := newFakeStore()
	store.seed(humayat.Image{ID: "abc", Title: "ghost", CreatedAt: time.Now()})
	c, rec := newReadyCatalog(t, store, nil)

	store.mu.Lock()
	delete(store.images, "abc")
	store.mu.Unlock()

	require.NoError(t, c.Delete(context.Background(), "abc"))
	assert.Zero(t, c.Len())

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelInfo, notices[0].Level)
}

func TestDefaultAttribution(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)

	image, err := c.Upload(context.Background(), jpegOfSize(64), "anon")
	require.NoError(t, err)
	assert.Equal(t, humayat.DefaultAttribution, image.UploadedBy)

	blank, _ := newReadyCatalog(t, store, staticName("  "))
	image, err = blank.Upload(context.Background(), jpegOfSize(64), "blank")
	require.NoError(t, err)
	assert.Equal(t, humayat.DefaultAttribution, image.UploadedBy)
}

func TestActiveAttributionIsUsed(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, staticName("alice"))

	image, err := c.Upload(context.Background(), jpegOfSize(64), "mine")
	require.NoError(t, err)
	assert.Equal(t, "alice", image.UploadedBy)
}

func TestFailedDeleteRetainsRecord(t *testing.T) {
	store := newFakeStore()
	store.seed(humayat.Image{ID: "keep", Title: "keep", CreatedAt: time.Now()})
	c, rec := newReadyCatalog(t, store, nil)

	store.onDelete = func(string) error {
		return &humayat.TransportError{Op: "delete image", Attempts: 3, Err: errors.New("timeout")}
	}

	err := c.Delete(context.Background(), "keep")
	require.True(t, humayat.IsTransport(err))
	assert.Equal(t, []string{"keep"}, titles(c.Photos()))

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, LevelError, notices[0].Level)
}

func TestFailedUploadLeavesCollection(t *testing.T) {
	store := newFakeStore()
	c, rec := newReadyCatalog(t, store, nil)
	store.onCreate = func(string, string) (humayat.Image, error) {
		return humayat.Image{}, &humayat.UpstreamServiceError{Service: "humayat", StatusCode: 500, Message: "media"}
	}

	_, err := c.Upload(context.Background(), jpegOfSize(64), "lost")
	require.True(t, humayat.IsUpstream(err))
	assert.Zero(t, c.Len())
	require.Len(t, rec.Notices(), 1)
	assert.Equal(t, LevelError, rec.Notices()[0].Level)
}

func TestDuplicateConfirmationInsertedOnce(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)
	store.onCreate = func(title, _ string) (humayat.Image, error) {
		return humayat.Image{ID: "same", Title: title, CreatedAt: time.Now()}, nil
	}

	ctx := context.Background()
	_, err := c.Upload(ctx, jpegOfSize(64), "one")
	require.NoError(t, err)
	_, err = c.Upload(ctx, jpegOfSize(64), "two")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestUploadAndDeleteScenario(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)
	ctx := context.Background()

	x, err := c.Upload(ctx, jpegOfSize(1<<20), "Sunset")
	require.NoError(t, err)
	y, err := c.Upload(ctx, jpegOfSize(1<<20), "Dawn")
	require.NoError(t, err)

	photos := c.Photos()
	require.Len(t, photos, 2)
	assert.Equal(t, y.ID, photos[0].ID)
	assert.Equal(t, x.ID, photos[1].ID)

	require.NoError(t, c.Delete(ctx, x.ID))
	photos = c.Photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "Dawn", photos[0].Title)
	assert.Equal(t, y.ID, photos[0].ID)

	assert.Empty(t, c.Search("sun"))
	assert.Equal(t, []string{"Dawn"}, titles(c.Search("dawn")))
}

func TestConcurrentUploadsAndDeletes(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)
	ctx := context.Background()

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			image, err := c.Upload(ctx, jpegOfSize(64), fmt.Sprintf("p%d", i))
			if err == nil {
				ids <- image.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)
	require.Equal(t, n, c.Len())

	for id := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_ = c.Delete(ctx, id)
		}(id)
		go func(id string) {
			defer wg.Done()
			_ = c.Delete(ctx, id)
		}(id)
	}
	wg.Wait()
	assert.Zero(t, c.Len())
}

func TestDeleteInFlightKeepsRecordVisible(t *testing.T) {
	store := newFakeStore()
	store.seed(humayat.Image{ID: "slow", Title: "slow", CreatedAt: time.Now()})
	c, _ := newReadyCatalog(t, store, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	store.onDelete = func(string) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Delete(context.Background(), "slow") }()

	<-entered
	assert.Equal(t, 1, c.Len(), "record must stay until the store confirms")
	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, c.Len())
}

func TestGetFallsBackToStore(t *testing.T) {
	store := newFakeStore()
	c, rec := newReadyCatalog(t, store, nil)
	store.seed(humayat.Image{ID: "remote", Title: "remote"})

	image, err := c.Get(context.Background(), "remote")
	require.NoError(t, err)
	assert.Equal(t, "remote", image.Title)

	_, err = c.Get(context.Background(), "nope")
	require.True(t, humayat.IsNotFound(err))
	assert.Len(t, rec.Notices(), 1)
}

func TestSearchViewRecomputesOnChange(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)
	ctx := context.Background()

	view := c.NewSearchView()
	view.SetQuery("sun")
	assert.Empty(t, view.Results())

	_, err := c.Upload(ctx, jpegOfSize(64), "Sunrise")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sunrise"}, titles(view.Results()))

	view.SetQuery("moon")
	assert.Empty(t, view.Results())
	assert.Equal(t, "moon", view.Query())
}

func TestSubscribeSignalsChanges(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)

	changes, cancel := c.Subscribe()
	defer cancel()

	_, err := c.Upload(context.Background(), jpegOfSize(64), "ping")
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}

func TestClosedCatalogRejectsOperations(t *testing.T) {
	store := newFakeStore()
	c, _ := newReadyCatalog(t, store, nil)
	changes, _ := c.Subscribe()

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	_, open := <-changes
	assert.False(t, open)

	_, err := c.Upload(context.Background(), jpegOfSize(64), "late")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Delete(context.Background(), "x"), ErrClosed)
	assert.ErrorIs(t, c.Load(context.Background()), ErrClosed)

	calls := store.Calls()
	_, err = c.Get(context.Background(), "elsewhere")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, calls, store.Calls())
}
