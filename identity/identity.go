// Package identity keeps the local list of display identities and which one
// is active. Identities are never deleted.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/totegamma/humayat"
)

const (
	usersKey       = "photoArchiveUsers"
	currentUserKey = "photoArchiveCurrentUser"

	DefaultName = "User"
)

type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Store struct {
	kv KV

	mu         sync.RWMutex
	identities []Identity
	active     *Identity
}

// Open loads the persisted identities. When none were ever persisted a
// default identity is created and saved, but not activated.
func Open(kv KV) (*Store, error) {
	s := &Store{kv: kv}

	raw, err := kv.Get(usersKey)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		s.identities = []Identity{{ID: uuid.NewString(), Name: DefaultName}}
		if err := s.saveIdentities(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load identities: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.identities); err != nil {
			return nil, fmt.Errorf("decode identities: %w", err)
		}
	}

	raw, err = kv.Get(currentUserKey)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("load active identity: %w", err)
	default:
		var active Identity
		if err := json.Unmarshal(raw, &active); err != nil {
			return nil, fmt.Errorf("decode active identity: %w", err)
		}
		s.active = &active
	}

	return s, nil
}

// List returns the identities in insertion order.
func (s *Store) List() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Identity, len(s.identities))
	copy(out, s.identities)
	return out
}

// Add creates and persists a new identity. It does not activate it.
func (s *Store) Add(name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, &humayat.ValidationError{Field: "name", Reason: "name must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity := Identity{ID: uuid.NewString(), Name: name}
	s.identities = append(s.identities, identity)
	if err := s.saveIdentities(); err != nil {
		s.identities = s.identities[:len(s.identities)-1]
		return Identity{}, err
	}
	return identity, nil
}

// Get looks up an identity by id.
func (s *Store) Get(id string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.identities {
		if identity.ID == id {
			return identity, true
		}
	}
	return Identity{}, false
}

// SetActive persists the active identity. A nil identity clears it.
func (s *Store) SetActive(identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity == nil {
		if err := s.kv.Delete(currentUserKey); err != nil {
			return fmt.Errorf("clear active identity: %w", err)
		}
		s.active = nil
		return nil
	}

	active := *identity
	raw, err := json.Marshal(active)
	if err != nil {
		return err
	}
	if err := s.kv.Set(currentUserKey, raw); err != nil {
		return fmt.Errorf("save active identity: %w", err)
	}
	s.active = &active
	return nil
}

// Active returns the active identity, if any.
func (s *Store) Active() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return Identity{}, false
	}
	return *s.active, true
}

// Attribution returns the active identity's name, or "Anonymous".
func (s *Store) Attribution() string {
	if active, ok := s.Active(); ok && strings.TrimSpace(active.Name) != "" {
		return active.Name
	}
	return humayat.DefaultAttribution
}

func (s *Store) saveIdentities() error {
	raw, err := json.Marshal(s.identities)
	if err != nil {
		return err
	}
	if err := s.kv.Set(usersKey, raw); err != nil {
		return fmt.Errorf("save identities: %w", err)
	}
	return nil
}
