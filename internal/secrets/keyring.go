// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// keysIndexSuffix names the entry holding a service's JSON key index;
// go-keyring cannot enumerate keys on its own.
const keysIndexSuffix = "::keys-index"

// KeyringStore implements Store on the OS keyring (Keychain, secret-service,
// or Credential Manager).
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if err != nil {
		return "", keyringErr(err, "retrieving", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}
	if err := keyring.Delete(service, key); err != nil {
		return keyringErr(err, "deleting", service, key)
	}
	return s.updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, sigilerr.New(sigilerr.CodeSecretInvalidInput, "secret list: service must not be empty")
	}
	return s.loadIndex(service)
}

func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+keysIndexSuffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "loading key index for service %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "decoding key index for service %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) updateIndex(service string, mutate func([]string) []string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	keys = mutate(keys)

	indexKey := service + keysIndexSuffix
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to clean up empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "encoding key index for service %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "saving key index for service %s", service)
	}
	return nil
}

func checkRef(op, service, key string) error {
	if service == "" {
		return sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

func keyringErr(err error, verb, service, key string) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "%s secret %s/%s", verb, service, key)
}
