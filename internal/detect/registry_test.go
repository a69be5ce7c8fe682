package detect

import (
	"context"
	"runtime"
	"testing"
)

func TestReadStoreReturnsFirstChildWithValue(t *testing.T) {
	store := driverStore("", "", "32.0.15.6094", "31.0.15.1659")
	c := newTestCascade(nil, nil, store)

	r := c.readStore(context.Background())
	if r.Status != StatusFound || r.Value != "32.0.15.6094" {
		t.Fatalf("readStore = %+v", r)
	}
	if r.Candidate() != "Version (Registry): 32.0.15.6094" {
		t.Fatalf("Candidate = %q", r.Candidate())
	}

	root := store.keys[testRegistryPath]
	if root.closed != 1 {
		t.Fatalf("root key closed %d times, want 1", root.closed)
	}
	for _, name := range root.order[:3] {
		if root.children[name].closed != 1 {
			t.Errorf("child %s closed %d times, want 1", name, root.children[name].closed)
		}
	}
}

func TestReadStoreMissingRootIsNotFound(t *testing.T) {
	c := newTestCascade(nil, nil, &fakeStore{keys: map[string]*fakeKey{}})
	r := c.readStore(context.Background())
	if r.Status != StatusNotFound {
		t.Fatalf("status = %s, want not_found", r.Status)
	}
}

func TestReadStoreNoChildHasValue(t *testing.T) {
	c := newTestCascade(nil, nil, driverStore("", ""))
	r := c.readStore(context.Background())
	if r.Status != StatusNotFound {
		t.Fatalf("status = %s (%s), want not_found", r.Status, r.Detail)
	}
}

func TestReadStoreEmptyRoot(t *testing.T) {
	c := newTestCascade(nil, nil, driverStore())
	if r := c.readStore(context.Background()); r.Status != StatusNotFound {
		t.Fatalf("status = %s, want not_found", r.Status)
	}
}

func TestReadStoreListErrorIsError(t *testing.T) {
	store := driverStore("32.0.15.6094")
	store.keys[testRegistryPath].listErr = errBoom
	c := newTestCascade(nil, nil, store)
	if r := c.readStore(context.Background()); r.Status != StatusError {
		t.Fatalf("status = %s, want error", r.Status)
	}
}

func TestReadStoreValueErrorSkipsChild(t *testing.T) {
	store := driverStore("555.85", "32.0.15.6094")
	root := store.keys[testRegistryPath]
	root.children[root.order[0]].valueErr = errBoom

	c := newTestCascade(nil, nil, store)
	r := c.readStore(context.Background())
	if r.Status != StatusFound || r.Value != "32.0.15.6094" {
		t.Fatalf("readStore = %+v, want the readable child", r)
	}

	root.children[root.order[1]].valueErr = errBoom
	if r := c.readStore(context.Background()); r.Status != StatusError {
		t.Fatalf("status = %s, want error when every read fails", r.Status)
	}
}

func TestUnsupportedStoreOffPlatform(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("reads the real registry on Windows")
	}
	c := newTestCascade(nil, nil, NewConfigStore())
	r := c.readStore(context.Background())
	if r.Status == StatusError {
		t.Fatalf("platform store should never be an error result when absent: %+v", r)
	}
}

func TestReadStoreSkipsChildWithEmptyValue(t *testing.T) {
	store := driverStore("", "31.0.15.1659")
	root := store.keys[testRegistryPath]
	root.children[root.order[0]].values["Display.Driver"] = ""

	r := newTestCascade(nil, nil, store).readStore(context.Background())
	if r.Status != StatusFound || r.Value != "31.0.15.1659" {
		t.Fatalf("readStore = %+v, want the second child's value", r)
	}
}
