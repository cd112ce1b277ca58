// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// store.go is the client-side component cache. Each key holds the list the
// server last confirmed plus an ordered log of optimistic mutations that
// are still waiting for a reply. Readers see the confirmed list with the
// pending mutations replayed on top, so rolling one mutation back never
// discards another one that is still in flight.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sitekit/internal/models"
	"sitekit/internal/ordering"
)

// Cache scopes, one isolated partition each.
const (
	ScopeComponents = "pageComponents"
	ScopeNavbar     = "navbar"
	ScopeFooter     = "footer"
	ScopeThemes     = "themes"
)

// ErrUnknownToken is returned when committing or rolling back a mutation
// that was already settled.
var ErrUnknownToken = errors.New("cache: unknown or settled mutation")

// Key addresses one cached list. Site-wide scopes leave Slug and Status empty.
type Key struct {
	Scope  string
	Slug   string
	Status models.DocumentStatus
}

// ComponentsKey addresses the component list of one page in one state.
func ComponentsKey(slug string, status models.DocumentStatus) Key {
	return Key{Scope: ScopeComponents, Slug: slug, Status: status}
}

// NavbarKey addresses the site navbar.
func NavbarKey() Key { return Key{Scope: ScopeNavbar} }

// FooterKey addresses the site footer.
func FooterKey() Key { return Key{Scope: ScopeFooter} }

// ThemesKey addresses the theme gallery.
func ThemesKey() Key { return Key{Scope: ScopeThemes} }

func (k Key) String() string {
	if k.Slug == "" {
		return k.Scope
	}
	return fmt.Sprintf("%s/%s/%s", k.Scope, k.Slug, k.Status)
}

// Mutation computes a new list from the current one. It must not modify its
// argument.
type Mutation func([]models.Component) []models.Component

// Confirmed is the server-confirmed state of one key, handed to reconcile
// functions under the store lock.
type Confirmed struct {
	List       []models.Component
	tombstones map[string]struct{}
}

// Tombstone records that the server deleted id. Optimistic creates of the
// same id that are still pending are hidden, and a late confirmation of
// such a create is dropped.
func (c *Confirmed) Tombstone(id string) {
	if c.tombstones == nil {
		c.tombstones = make(map[string]struct{})
	}
	c.tombstones[id] = struct{}{}
}

// Deleted reports whether id was tombstoned.
func (c *Confirmed) Deleted(id string) bool {
	_, ok := c.tombstones[id]
	return ok
}

// Token identifies one pending optimistic mutation.
type Token struct {
	key Key
	id  uint64
}

// Key returns the key the mutation was applied to.
func (t Token) Key() Key { return t.key }

type pendingMutation struct {
	id    uint64
	label string
	apply Mutation
}

type entry struct {
	confirmed Confirmed
	loaded    bool
	pending   []pendingMutation
	view      []models.Component
	version   uint64
}

// WatchFunc is called after the visible list of key changed.
type WatchFunc func(key Key, version uint64)

// Store is the process-wide keyed cache. All methods are safe for
// concurrent use; the only writers are the optimistic mutation methods and
// the server-truth methods Set and Merge.
type Store struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	nextID   uint64
	watchers map[uint64]WatchFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[Key]*entry),
		watchers: make(map[uint64]WatchFunc),
	}
}

// Get returns a copy of the visible list and whether the key was ever loaded
// or mutated.
func (s *Store) Get(key Key) ([]models.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return models.CloneList(e.view), true
}

// Loaded reports whether server truth was stored for key.
func (s *Store) Loaded(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.loaded
}

// Version returns a counter bumped on every visible change of key.
func (s *Store) Version(key Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.version
	}
	return 0
}

// Pending returns how many optimistic mutations on key await a reply.
func (s *Store) Pending(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return len(e.pending)
	}
	return 0
}

// Set replaces the confirmed list of key with server truth, sorted by order.
// Pending mutations stay and are replayed on top.
func (s *Store) Set(key Key, list []models.Component) {
	sorted := ordering.Sort(list)
	if sorted == nil {
		sorted = []models.Component{}
	}
	s.Merge(key, func(c *Confirmed) {
		c.List = sorted
	})
}

// Merge applies server truth that did not come from a local command, such as
// a change broadcast from another session.
func (s *Store) Merge(key Key, reconcile func(*Confirmed)) {
	s.mu.Lock()
	e := s.entryLocked(key)
	reconcile(&e.confirmed)
	e.loaded = true
	version := s.recomputeLocked(e)
	watchers := s.watchersLocked()
	s.mu.Unlock()

	notify(watchers, key, version)
}

// ApplyOptimistic records mutation as pending on key and returns its token
// together with the list as it was visible before the mutation, the rollback
// snapshot callers may keep for reporting.
func (s *Store) ApplyOptimistic(key Key, label string, mutation Mutation) (Token, []models.Component) {
	s.mu.Lock()
	e := s.entryLocked(key)
	previous := models.CloneList(e.view)
	s.nextID++
	tok := Token{key: key, id: s.nextID}
	e.pending = append(e.pending, pendingMutation{id: tok.id, label: label, apply: mutation})
	version := s.recomputeLocked(e)
	watchers := s.watchersLocked()
	s.mu.Unlock()

	slog.Debug("optimistic apply", "key", key.String(), "mutation", label, "pending", tok.id)
	notify(watchers, key, version)
	return tok, previous
}

// Commit settles a pending mutation as confirmed. reconcile folds the
// server's canonical result into the confirmed list; it may be nil when the
// reply carries nothing to merge.
func (s *Store) Commit(tok Token, reconcile func(*Confirmed)) error {
	s.mu.Lock()
	e, label, ok := s.settleLocked(tok)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownToken
	}
	if reconcile != nil {
		reconcile(&e.confirmed)
	}
	e.loaded = true
	version := s.recomputeLocked(e)
	watchers := s.watchersLocked()
	s.mu.Unlock()

	slog.Debug("optimistic commit", "key", tok.key.String(), "mutation", label)
	notify(watchers, tok.key, version)
	return nil
}

// Rollback discards a pending mutation. Other pending mutations on the same
// key are unaffected.
func (s *Store) Rollback(tok Token) error {
	s.mu.Lock()
	e, label, ok := s.settleLocked(tok)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownToken
	}
	version := s.recomputeLocked(e)
	watchers := s.watchersLocked()
	s.mu.Unlock()

	slog.Debug("optimistic rollback", "key", tok.key.String(), "mutation", label)
	notify(watchers, tok.key, version)
	return nil
}

// Invalidate drops everything cached for key, pending mutations included.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	delete(s.entries, key)
	watchers := s.watchersLocked()
	s.mu.Unlock()

	notify(watchers, key, 0)
}

// Watch registers fn for change notifications and returns a function that
// removes it. fn runs outside the store lock and may call back into the store.
func (s *Store) Watch(fn WatchFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{confirmed: Confirmed{List: []models.Component{}}, view: []models.Component{}}
		s.entries[key] = e
	}
	return e
}

func (s *Store) settleLocked(tok Token) (*entry, string, bool) {
	e, ok := s.entries[tok.key]
	if !ok {
		return nil, "", false
	}
	for i, p := range e.pending {
		if p.id == tok.id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return e, p.label, true
		}
	}
	return nil, "", false
}

// recomputeLocked rebuilds the visible list: confirmed state, pending
// mutations in issue order, then tombstoned ids removed. Tombstones are only
// needed while mutations are pending and are dropped once none are.
func (s *Store) recomputeLocked(e *entry) uint64 {
	view := models.CloneList(e.confirmed.List)
	for _, p := range e.pending {
		view = p.apply(models.CloneList(view))
	}
	for id := range e.confirmed.tombstones {
		if ordering.IndexOf(view, id) >= 0 {
			view = ordering.Remove(view, id)
		}
	}
	if len(e.pending) == 0 {
		e.confirmed.tombstones = nil
	}
	if view == nil {
		view = []models.Component{}
	}
	e.view = view
	e.version++
	return e.version
}

func (s *Store) watchersLocked() []WatchFunc {
	if len(s.watchers) == 0 {
		return nil
	}
	out := make([]WatchFunc, 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	return out
}

func notify(watchers []WatchFunc, key Key, version uint64) {
	for _, w := range watchers {
		w(key, version)
	}
}
