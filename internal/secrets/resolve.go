// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"slices"
	"strings"

	"github.com/spf13/viper"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// ResolveKeyringURI resolves a keyring:// URI to its secret value. Other
// values are returned unchanged.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string value in v with the
// secret it names. All failures are collected; the offending keys keep their
// URI values.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	keys := v.AllKeys()
	slices.Sort(keys)

	var errs []error
	for _, key := range keys {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}
		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			errs = append(errs, sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure, "config key %s", key))
			continue
		}
		v.Set(key, resolved)
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}
