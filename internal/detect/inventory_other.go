//go:build !windows

package detect

import (
	"context"
	"fmt"
)

// NewInventory returns an inventory that is unavailable off Windows.
func NewInventory() Inventory {
	return unsupportedInventory{}
}

type unsupportedInventory struct{}

func (unsupportedInventory) SignedDrivers(context.Context, string) ([]DriverRecord, error) {
	return nil, fmt.Errorf("signed driver inventory is only supported on Windows: %w", ErrNotSupported)
}
