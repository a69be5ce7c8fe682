package detect

import (
	"context"
	"errors"
	"fmt"
)

// ConfigStore is a hierarchical key-value store such as the Windows
// registry. Missing keys and values are reported as ErrNotFound.
type ConfigStore interface {
	OpenKey(path string) (StoreKey, error)
}

// StoreKey is an open store key.
type StoreKey interface {
	SubKeyNames() ([]string, error)
	OpenSubKey(name string) (StoreKey, error)
	StringValue(name string) (string, error)
	Close() error
}

// readStore returns the version recorded by the vendor installer: the named
// value of the first child key that has it.
func (c *Cascade) readStore(ctx context.Context) SourceResult {
	if c.store == nil {
		return notFound(SourceRegistry, "no configuration store available")
	}

	key, err := c.store.OpenKey(c.opts.RegistryPath)
	if err != nil {
		return fromError(SourceRegistry, fmt.Errorf("open %s: %w", c.opts.RegistryPath, err))
	}
	defer key.Close()

	names, err := key.SubKeyNames()
	if err != nil {
		return fromError(SourceRegistry, fmt.Errorf("list %s: %w", c.opts.RegistryPath, err))
	}

	var lastErr error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return failed(SourceRegistry, err)
		}

		value, err := c.childValue(key, name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				lastErr = err
			}
			continue
		}
		// An empty value is a stale installer record; keep looking.
		if value != "" {
			return found(SourceRegistry, value)
		}
	}

	if lastErr != nil {
		return failed(SourceRegistry, lastErr)
	}
	return notFound(SourceRegistry, fmt.Sprintf("no %s value under %s", c.opts.RegistryValue, c.opts.RegistryPath))
}

func (c *Cascade) childValue(parent StoreKey, name string) (string, error) {
	child, err := parent.OpenSubKey(name)
	if err != nil {
		return "", fmt.Errorf("open subkey %s: %w", name, err)
	}
	defer child.Close()

	value, err := child.StringValue(c.opts.RegistryValue)
	if err != nil {
		return "", fmt.Errorf("read %s\\%s: %w", name, c.opts.RegistryValue, err)
	}
	return value, nil
}
