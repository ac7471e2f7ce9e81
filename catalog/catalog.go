// Package catalog keeps the in-memory photo collection shown to the user and
// mediates every change to it through the remote store.
//
// The collection is always ordered newest first. Mutations are applied only
// after the remote store confirms them, so a failed request never leaves a
// half-applied view behind. Operations may run concurrently; each one applies
// its own transition when its request resolves.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/totegamma/humayat"
)

var ErrClosed = errors.New("catalog closed")

// Store is the remote side of the catalog.
type Store interface {
	List(ctx context.Context) ([]humayat.Image, error)
	Get(ctx context.Context, id string) (humayat.Image, error)
	Create(ctx context.Context, upload humayat.Upload, title, attribution string) (humayat.Image, error)
	Delete(ctx context.Context, id string) error
}

// AttributionSource supplies the display name attached to new uploads.
type AttributionSource interface {
	Attribution() string
}

type State int

const (
	StateLoading State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Options struct {
	Notifier    Notifier
	Attribution AttributionSource
	Logger      *slog.Logger
}

type Catalog struct {
	store       Store
	notifier    Notifier
	attribution AttributionSource
	logger      *slog.Logger

	mu          sync.RWMutex
	state       State
	photos      []humayat.Image
	version     uint64
	subscribers map[int]chan struct{}
	nextSubID   int
}

func New(store Store, opts Options) *Catalog {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: opts.Logger}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:       store,
		notifier:    notifier,
		attribution: opts.Attribution,
		logger:      logger.With(slog.String("module", "catalog")),
		state:       StateLoading,
		photos:      []humayat.Image{},
		subscribers: make(map[int]chan struct{}),
	}
}

// Load fetches the full collection from the store and makes the catalog Ready.
// On failure the catalog still becomes Ready, keeping whatever it held before
// (nothing, on the first load), and a single error notice is emitted.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateLoading
	c.mu.Unlock()

	images, err := c.store.List(ctx)

	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateReady
	}
	if err == nil {
		c.photos = normalize(images)
	}
	c.version++
	c.mu.Unlock()
	c.broadcast()

	if err != nil {
		c.logger.ErrorContext(ctx, "failed to load photos", slog.String("error", err.Error()))
		c.notifier.Notify(Notice{Level: LevelError, Message: "Could not load photos", Err: err})
		return err
	}
	return nil
}

// Refresh reloads the collection from the store.
func (c *Catalog) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

// Upload validates the payload locally, submits it and, once the store has
// confirmed it, inserts the new record at the head of the collection.
func (c *Catalog) Upload(ctx context.Context, upload humayat.Upload, title string) (humayat.Image, error) {
	if c.isClosed() {
		return humayat.Image{}, ErrClosed
	}

	if err := upload.Validate(); err != nil {
		c.notifier.Notify(Notice{Level: LevelError, Message: validationMessage(err), Err: err})
		return humayat.Image{}, err
	}

	title = strings.TrimSpace(title)
	image, err := c.store.Create(ctx, upload, title, c.currentAttribution())
	if err != nil {
		c.logger.ErrorContext(ctx, "upload failed", slog.String("title", title), slog.String("error", err.Error()))
		c.notifier.Notify(Notice{Level: LevelError, Message: "Upload failed", Err: err})
		return humayat.Image{}, err
	}

	c.mu.Lock()
	if indexOf(c.photos, image.ID) < 0 {
		photos := make([]humayat.Image, 0, len(c.photos)+1)
		photos = append(photos, image)
		c.photos = append(photos, c.photos...)
		c.version++
	}
	c.mu.Unlock()
	c.broadcast()

	c.notifier.Notify(Notice{Level: LevelSuccess, Message: "Photo uploaded"})
	return image, nil
}

// Delete removes a photo. Deleting an id the catalog does not hold succeeds
// without contacting the store. The record stays visible until the store has
// confirmed the removal; a NotFoundError from the store counts as confirmation.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.mu.RLock()
	present := indexOf(c.photos, id) >= 0
	c.mu.RUnlock()
	if !present {
		c.logger.DebugContext(ctx, "delete of unknown photo ignored", slog.String("id", id))
		return nil
	}

	err := c.store.Delete(ctx, id)
	switch {
	case err == nil:
		c.remove(id)
		c.notifier.Notify(Notice{Level: LevelSuccess, Message: "Photo deleted"})
		return nil
	case humayat.IsNotFound(err):
		c.remove(id)
		c.notifier.Notify(Notice{Level: LevelInfo, Message: "Photo was already deleted"})
		return nil
	default:
		c.logger.ErrorContext(ctx, "delete failed", slog.String("id", id), slog.String("error", err.Error()))
		c.notifier.Notify(Notice{Level: LevelError, Message: "Could not delete photo", Err: err})
		return err
	}
}

// Get returns a photo from memory, falling back to the store for ids the
// collection does not hold.
func (c *Catalog) Get(ctx context.Context, id string) (humayat.Image, error) {
	if c.isClosed() {
		return humayat.Image{}, ErrClosed
	}

	c.mu.RLock()
	if i := indexOf(c.photos, id); i >= 0 {
		image := c.photos[i]
		c.mu.RUnlock()
		return image, nil
	}
	c.mu.RUnlock()

	image, err := c.store.Get(ctx, id)
	if err != nil {
		c.notifier.Notify(Notice{Level: LevelError, Message: "Could not load photo", Err: err})
		return humayat.Image{}, err
	}
	return image, nil
}

// Search filters the collection by a case-insensitive substring of the title.
// It never contacts the store and never changes the collection.
func (c *Catalog) Search(query string) []humayat.Image {
	results, _ := c.search(query)
	return results
}

func (c *Catalog) search(query string) ([]humayat.Image, uint64) {
	needle := strings.ToLower(query)

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]humayat.Image, 0, len(c.photos))
	for _, photo := range c.photos {
		if strings.Contains(strings.ToLower(photo.Title), needle) {
			results = append(results, photo)
		}
	}
	return results, c.version
}

// Photos returns a copy of the collection, newest first.
func (c *Catalog) Photos() []humayat.Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]humayat.Image, len(c.photos))
	copy(out, c.photos)
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.photos)
}

func (c *Catalog) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Version increases every time the collection changes.
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Subscribe returns a channel that receives a signal after every change to the
// collection. Signals coalesce; a slow reader sees at least the latest one.
func (c *Catalog) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan struct{}, 1)
	if c.state == StateClosed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close tears the catalog down. Requests already in flight may still complete.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	return nil
}

func (c *Catalog) remove(id string) {
	c.mu.Lock()
	i := indexOf(c.photos, id)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	photos := make([]humayat.Image, 0, len(c.photos)-1)
	photos = append(photos, c.photos[:i]...)
	c.photos = append(photos, c.photos[i+1:]...)
	c.version++
	c.mu.Unlock()
	c.broadcast()
}

func (c *Catalog) broadcast() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Catalog) isClosed() bool {
	return c.State() == StateClosed
}

func (c *Catalog) currentAttribution() string {
	if c.attribution == nil {
		return humayat.DefaultAttribution
	}
	if name := strings.TrimSpace(c.attribution.Attribution()); name != "" {
		return name
	}
	return humayat.DefaultAttribution
}

func indexOf(photos []humayat.Image, id string) int {
	for i, photo := range photos {
		if photo.ID == id {
			return i
		}
	}
	return -1
}

// normalize drops duplicate ids and orders the list newest first.
func normalize(images []humayat.Image) []humayat.Image {
	seen := make(map[string]struct{}, len(images))
	out := make([]humayat.Image, 0, len(images))
	for _, image := range images {
		if _, dup := seen[image.ID]; dup {
			continue
		}
		seen[image.ID] = struct{}{}
		out = append(out, image)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func validationMessage(err error) string {
	var v *humayat.ValidationError
	if errors.As(err, &v) {
		return "Invalid image: " + v.Reason
	}
	return "Invalid image"
}
