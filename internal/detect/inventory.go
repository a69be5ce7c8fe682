package detect

import (
	"context"
	"fmt"
	"strings"
)

// Inventory enumerates signed device drivers whose device name contains
// filter. Implementations may match more loosely than the cascade does.
type Inventory interface {
	SignedDrivers(ctx context.Context, filter string) ([]DriverRecord, error)
}

// enumerate returns the matching records and the inventory source result.
// The result's value is the first record's version.
func (c *Cascade) enumerate(ctx context.Context) (records []DriverRecord, result SourceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			records = nil
			result = failed(SourceInventory, fmt.Errorf("source panicked: %v", rec))
		}
	}()

	if c.inventory == nil {
		return nil, notFound(SourceInventory, "no device inventory available")
	}

	raw, err := c.inventory.SignedDrivers(ctx, c.opts.DeviceFilter)
	if err != nil {
		return nil, fromError(SourceInventory, fmt.Errorf("inventory query: %w", err))
	}

	records = filterRecords(raw, c.opts.DeviceFilter)
	if len(records) == 0 {
		return nil, notFound(SourceInventory, fmt.Sprintf("no device matching %q", c.opts.DeviceFilter))
	}
	return records, found(SourceInventory, records[0].Version)
}

// filterRecords keeps records with a non-empty name and version whose name
// contains filter (case-sensitive).
func filterRecords(raw []DriverRecord, filter string) []DriverRecord {
	var out []DriverRecord
	for _, rec := range raw {
		name := strings.TrimSpace(rec.DeviceName)
		version := strings.TrimSpace(rec.Version)
		if name == "" || version == "" {
			continue
		}
		if !strings.Contains(name, filter) {
			continue
		}
		out = append(out, DriverRecord{DeviceName: name, Version: version})
	}
	return out
}
