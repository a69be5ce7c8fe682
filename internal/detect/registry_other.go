//go:build !windows

package detect

import "fmt"

// NewConfigStore returns a store that reports every key as unsupported.
func NewConfigStore() ConfigStore {
	return unsupportedStore{}
}

type unsupportedStore struct{}

func (unsupportedStore) OpenKey(string) (StoreKey, error) {
	return nil, fmt.Errorf("registry is only supported on Windows: %w", ErrNotSupported)
}
