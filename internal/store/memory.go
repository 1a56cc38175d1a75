// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Storage. Contents are lost with the process.
type Memory struct {
	mu          sync.RWMutex
	generations map[string]map[string]*Entry
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{generations: make(map[string]map[string]*Entry)}
}

func (m *Memory) Open(_ context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.generations[name]; !ok {
		m.generations[name] = make(map[string]*Entry)
	}
	return &memoryCache{parent: m, name: name}, nil
}

func (m *Memory) Lookup(_ context.Context, name string) (Cache, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.generations[name]; !ok {
		return nil, false, nil
	}
	return &memoryCache{parent: m, name: name}, true, nil
}

func (m *Memory) Has(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.generations[name]
	return ok, nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.generations))
	for name := range m.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.generations[name]
	delete(m.generations, name)
	return ok, nil
}

type memoryCache struct {
	parent *Memory
	name   string
}

func (c *memoryCache) Name() string { return c.name }

// entries returns the live map for this generation, recreating it when the
// generation was deleted after Open. Callers hold the write lock.
func (c *memoryCache) entries() map[string]*Entry {
	gen, ok := c.parent.generations[c.name]
	if !ok {
		gen = make(map[string]*Entry)
		c.parent.generations[c.name] = gen
	}
	return gen
}

func (c *memoryCache) Put(_ context.Context, e *Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	c.entries()[e.Key] = e.Clone()
	return nil
}

func (c *memoryCache) Match(_ context.Context, key string) (*Entry, bool, error) {
	c.parent.mu.RLock()
	defer c.parent.mu.RUnlock()
	e, ok := c.parent.generations[c.name][key]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	c.parent.mu.RLock()
	defer c.parent.mu.RUnlock()
	gen := c.parent.generations[c.name]
	keys := make([]string, 0, len(gen))
	for k := range gen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	gen, ok := c.parent.generations[c.name]
	if !ok {
		return false, nil
	}
	_, ok = gen[key]
	delete(gen, key)
	return ok, nil
}
