package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/breeze-rmm/driver-manager/internal/executor"
)

type fakeInventory struct {
	records []DriverRecord
	err     error
	panics  bool
	filter  string
	calls   int
}

func (f *fakeInventory) SignedDrivers(_ context.Context, filter string) ([]DriverRecord, error) {
	f.calls++
	f.filter = filter
	if f.panics {
		panic("wmi exploded")
	}
	return f.records, f.err
}

type fakeRunner struct {
	result      *executor.Result
	err         error
	calls       int
	lastName    string
	lastArgs    []string
	hadDeadline bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*executor.Result, error) {
	f.calls++
	f.lastName = name
	f.lastArgs = args
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return &executor.Result{ExitCode: -1}, f.err
	}
	if f.result == nil {
		return &executor.Result{}, nil
	}
	return f.result, nil
}

func smiOutput(stdout string) *fakeRunner {
	return &fakeRunner{result: &executor.Result{Stdout: stdout}}
}

type fakeKey struct {
	order    []string
	children map[string]*fakeKey
	values   map[string]string
	valueErr error
	listErr  error
	closed   int
}

func (k *fakeKey) SubKeyNames() ([]string, error) {
	if k.listErr != nil {
		return nil, k.listErr
	}
	return k.order, nil
}

func (k *fakeKey) OpenSubKey(name string) (StoreKey, error) {
	child, ok := k.children[name]
	if !ok {
		return nil, fmt.Errorf("subkey %s: %w", name, ErrNotFound)
	}
	return child, nil
}

func (k *fakeKey) StringValue(name string) (string, error) {
	if k.valueErr != nil {
		return "", k.valueErr
	}
	v, ok := k.values[name]
	if !ok {
		return "", fmt.Errorf("value %s: %w", name, ErrNotFound)
	}
	return v, nil
}

func (k *fakeKey) Close() error {
	k.closed++
	return nil
}

type fakeStore struct {
	keys   map[string]*fakeKey
	opened int
}

func (s *fakeStore) OpenKey(path string) (StoreKey, error) {
	s.opened++
	key, ok := s.keys[path]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", path, ErrNotFound)
	}
	return key, nil
}

const testRegistryPath = `SOFTWARE\NVIDIA Corporation\Installer2\Drivers`

// driverStore builds a store with one child per version, in order. An empty
// version produces a child with no value.
func driverStore(versions ...string) *fakeStore {
	root := &fakeKey{children: map[string]*fakeKey{}}
	for i, v := range versions {
		name := fmt.Sprintf("Display.Driver.%d", i)
		child := &fakeKey{values: map[string]string{}}
		if v != "" {
			child.values["Display.Driver"] = v
		}
		root.order = append(root.order, name)
		root.children[name] = child
	}
	return &fakeStore{keys: map[string]*fakeKey{testRegistryPath: root}}
}

func testOptions() Options {
	return Options{
		DeviceFilter:  "NVIDIA GeForce",
		SMIPath:       "nvidia-smi",
		RegistryPath:  testRegistryPath,
		RegistryValue: "Display.Driver",
	}
}

func newTestCascade(inv Inventory, runner CommandRunner, store ConfigStore) *Cascade {
	c := New(testOptions(), inv, runner, store)
	c.lookPath = func(name string) (string, error) { return name, nil }
	return c
}

var errBoom = errors.New("boom")
