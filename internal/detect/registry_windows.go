//go:build windows

package detect

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/windows/registry"
)

// NewConfigStore returns the HKEY_LOCAL_MACHINE registry store.
func NewConfigStore() ConfigStore {
	return &hklmStore{root: registry.LOCAL_MACHINE}
}

type hklmStore struct {
	root registry.Key
}

func (s *hklmStore) OpenKey(path string) (StoreKey, error) {
	key, err := openRegistryKey(s.root, path)
	if err != nil {
		return nil, err
	}
	return key, nil
}

type registryKey struct {
	key registry.Key
}

func openRegistryKey(parent registry.Key, path string) (*registryKey, error) {
	key, err := registry.OpenKey(parent, path, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	return &registryKey{key: key}, nil
}

func (k *registryKey) SubKeyNames() ([]string, error) {
	names, err := k.key.ReadSubKeyNames(-1)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	return names, nil
}

func (k *registryKey) OpenSubKey(name string) (StoreKey, error) {
	key, err := openRegistryKey(k.key, name)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// StringValue reads a REG_SZ / REG_EXPAND_SZ value, rendering integer
// values in decimal.
func (k *registryKey) StringValue(name string) (string, error) {
	value, _, err := k.key.GetStringValue(name)
	if err == nil {
		return value, nil
	}
	if errors.Is(err, registry.ErrUnexpectedType) {
		n, _, intErr := k.key.GetIntegerValue(name)
		if intErr == nil {
			return strconv.FormatUint(n, 10), nil
		}
		return "", fmt.Errorf("value %s has an unsupported type: %w", name, intErr)
	}
	return "", mapRegistryError(err)
}

func (k *registryKey) Close() error {
	return k.key.Close()
}

func mapRegistryError(err error) error {
	if errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("registry %w", ErrNotFound)
	}
	return err
}
