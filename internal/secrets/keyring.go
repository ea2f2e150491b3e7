// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package secrets keeps provider API keys and the server token out of the
// config file. Values live in the OS keyring and are referenced from config
// as keyring://service/key.
package secrets

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/zalando/go-keyring"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Service is the keyring service name paw writes its own secrets under.
const Service = "paw"

// indexSuffix names the entry holding the JSON list of keys for a service;
// go-keyring cannot enumerate entries itself.
const indexSuffix = "::index"

// Store provides secret storage operations.
type Store interface {
	Store(service, key, value string) error
	// Retrieve returns a CodeSecretNotFound error when key is absent.
	Retrieve(service, key string) (string, error)
	Delete(service, key string) error
	List(service string) ([]string, error)
}

// KeyringStore implements Store on top of the OS keyring (Keychain,
// secret-service over D-Bus, or Windows Credential Manager).
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkNames(op, service, key string) error {
	if service == "" {
		return pawerr.Errorf(pawerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return pawerr.Errorf(pawerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkNames("store", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	return s.updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkNames("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", pawerr.Errorf(pawerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", pawerr.Wrapf(err, pawerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkNames("delete", service, key); err != nil {
		return err
	}

	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return pawerr.Errorf(pawerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return pawerr.Wrapf(err, pawerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	return s.updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

// List returns the key names stored under service, in insertion order.
func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeSecretListFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeSecretListFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) updateIndex(service string, edit func([]string) []string) error {
	keys, err := s.List(service)
	if err != nil {
		return err
	}
	keys = edit(keys)

	indexKey := service + indexSuffix
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return pawerr.Wrapf(err, pawerr.CodeSecretListFailure, "clearing key index for %s", service)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeSecretListFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeSecretListFailure, "saving key index for %s", service)
	}
	return nil
}
