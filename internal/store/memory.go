// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"fmt"
	"sync"

	"sitekit/internal/models"
	"sitekit/internal/ordering"
)

// MemoryStore is a Repository held in process memory, used for development
// and tests. Lists are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[Ref][]models.Component
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[Ref][]models.Component)}
}

func (s *MemoryStore) List(_ context.Context, ref Ref) ([]models.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := models.CloneList(s.lists[ref])
	if list == nil {
		list = []models.Component{}
	}
	return list, nil
}

func (s *MemoryStore) Get(_ context.Context, ref Ref, id string) (models.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lists[ref]
	i := ordering.IndexOf(list, id)
	if i < 0 {
		return models.Component{}, fmt.Errorf("get %s in %s: %w", id, ref, ErrNotFound)
	}
	return list[i].Clone(), nil
}

func (s *MemoryStore) Insert(_ context.Context, ref Ref, c models.Component, index int) (models.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[ref]
	if ordering.IndexOf(list, c.ComponentID) >= 0 {
		return models.Component{}, fmt.Errorf("insert %s in %s: %w", c.ComponentID, ref, ErrExists)
	}
	c.Status = models.ComponentStatusConfirmed
	list = ordering.InsertAt(list, index, c)
	s.lists[ref] = list
	return list[ordering.IndexOf(list, c.ComponentID)].Clone(), nil
}

func (s *MemoryStore) UpdateData(_ context.Context, ref Ref, id string, patch map[string]any) (models.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[ref]
	i := ordering.IndexOf(list, id)
	if i < 0 {
		return models.Component{}, fmt.Errorf("update %s in %s: %w", id, ref, ErrNotFound)
	}
	updated := list[i].Clone()
	updated.MergeData(models.Component{Data: patch}.Clone().Data)
	list[i] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) Replace(_ context.Context, ref Ref, c models.Component, order *int) (models.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := models.CloneList(s.lists[ref])
	i := ordering.IndexOf(list, c.ComponentID)
	if i < 0 {
		return models.Component{}, fmt.Errorf("replace %s in %s: %w", c.ComponentID, ref, ErrNotFound)
	}
	list[i].ComponentType = c.ComponentType
	list[i].Data = c.Clone().Data
	if order != nil {
		list = ordering.Move(list, c.ComponentID, *order)
	}
	s.lists[ref] = list
	return list[ordering.IndexOf(list, c.ComponentID)].Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, ref Ref, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[ref]
	if ordering.IndexOf(list, id) < 0 {
		return fmt.Errorf("delete %s in %s: %w", id, ref, ErrNotFound)
	}
	s.lists[ref] = ordering.Remove(list, id)
	return nil
}

func (s *MemoryStore) Reorder(_ context.Context, ref Ref, updates []models.OrderUpdate) ([]models.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := ordering.BulkReorder(s.lists[ref], updates)
	s.lists[ref] = list
	return models.CloneList(list), nil
}
