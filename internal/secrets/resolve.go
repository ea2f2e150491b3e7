// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

const scheme = "keyring://"

// Ref returns the keyring:// reference for key under the paw service.
func Ref(key string) string {
	return scheme + Service + "/" + key
}

// IsRef reports whether value uses the keyring:// scheme.
func IsRef(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// ParseRef splits keyring://service/key into its parts.
func ParseRef(ref string) (service, key string, err error) {
	if !IsRef(ref) {
		return "", "", pawerr.Errorf(pawerr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(ref, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", pawerr.Errorf(pawerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/key", ref)
	}
	return service, key, nil
}

// Resolve returns the secret behind a keyring:// reference, or value
// unchanged when it is a plain string.
func Resolve(store Store, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}

	service, key, err := ParseRef(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", pawerr.Wrapf(err, pawerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring:// string in v with its secret. A
// reference that cannot be resolved is left in place and logged; the
// provider that needs it fails later with a clearer error.
func ResolveViper(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsRef(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			slog.Warn("keyring reference unresolved", "config_key", key, "error", err)
			continue
		}
		v.Set(key, resolved)
	}
}
