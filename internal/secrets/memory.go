// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"slices"
	"sync"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// MemoryStore is a process-local Store, used when no OS keyring is available
// and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (m *MemoryStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[service] == nil {
		m.data[service] = make(map[string]string)
	}
	m.data[service][key] = value
	return nil
}

func (m *MemoryStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[service][key]
	if !ok {
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return val, nil
}

func (m *MemoryStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[service][key]; !ok {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	delete(m.data[service], key)
	return nil
}

func (m *MemoryStore) List(service string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data[service]))
	for k := range m.data[service] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}
