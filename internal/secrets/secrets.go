// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets stores provider credentials outside the config file and
// resolves keyring:// references in loaded configuration.
package secrets

import "strings"

// Service is the keyring service name under which ontograph keeps its secrets.
const Service = "ontograph"

// Store provides secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value. A missing key yields CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret. A missing key yields CodeSecretNotFound.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

// ProviderKeyName is the key under which a provider's API key is stored.
func ProviderKeyName(provider string) string {
	return strings.ToLower(provider) + "-api-key"
}

// ProviderKeyURI returns the keyring URI that config files use to reference
// a provider's stored API key.
func ProviderKeyURI(provider string) string {
	return keyringScheme + Service + "/" + ProviderKeyName(provider)
}
