//go:build windows

package detect

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// sFalse is returned by CoInitializeEx when COM is already initialized on
// the thread.
const sFalse = 0x00000001

// NewInventory returns the WMI Win32_PnPSignedDriver inventory.
func NewInventory() Inventory {
	return &wmiInventory{namespace: `root\cimv2`}
}

type wmiInventory struct {
	namespace string
}

// SignedDrivers queries Win32_PnPSignedDriver. WQL LIKE is case-insensitive;
// the cascade narrows the result.
func (w *wmiInventory) SignedDrivers(ctx context.Context, filter string) ([]DriverRecord, error) {
	query := fmt.Sprintf("SELECT DeviceName, DriverVersion FROM Win32_PnPSignedDriver WHERE DeviceName LIKE '%%%s%%'", escapeWQL(filter))

	var records []DriverRecord
	err := w.withService(func(service *ole.IDispatch) error {
		resultVar, err := oleutil.CallMethod(service, "ExecQuery", query)
		if err != nil {
			return fmt.Errorf("ExecQuery failed: %w", err)
		}
		result := resultVar.ToIDispatch()
		defer result.Release()

		countVar, err := oleutil.GetProperty(result, "Count")
		if err != nil {
			return fmt.Errorf("get result count failed: %w", err)
		}
		count := int(countVar.Val)
		countVar.Clear()

		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			itemVar, err := oleutil.CallMethod(result, "ItemIndex", i)
			if err != nil {
				log.Debug("skipping inventory item", "index", i, "error", err)
				continue
			}
			item := itemVar.ToIDispatch()
			records = append(records, DriverRecord{
				DeviceName: stringProperty(item, "DeviceName"),
				Version:    stringProperty(item, "DriverVersion"),
			})
			item.Release()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (w *wmiInventory) withService(action func(service *ole.IDispatch) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || (oleErr.Code() != ole.S_OK && oleErr.Code() != sFalse) {
			return fmt.Errorf("failed to initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return fmt.Errorf("failed to create WMI locator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("failed to query WMI locator: %w", err)
	}
	defer locator.Release()

	serviceVar, err := oleutil.CallMethod(locator, "ConnectServer", ".", w.namespace)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", w.namespace, err)
	}
	service := serviceVar.ToIDispatch()
	defer service.Release()

	return action(service)
}

func stringProperty(item *ole.IDispatch, name string) string {
	v, err := oleutil.GetProperty(item, name)
	if err != nil {
		return ""
	}
	defer v.Clear()

	if s, ok := v.Value().(string); ok {
		return s
	}
	return ""
}

func escapeWQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
