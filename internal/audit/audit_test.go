package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/breeze-rmm/driver-manager/internal/config"
)

func newTestLogger(t *testing.T, maxSize int64, maxBackups int) *Logger {
	t.Helper()
	l, err := open(filepath.Join(t.TempDir(), "audit.jsonl"), maxSize, maxBackups)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Log(EventDetection, "run", nil)
	if err := l.Close(); err != nil {
		t.Fatalf("Close on nil logger: %v", err)
	}
	if got := l.DroppedCount(); got != -1 {
		t.Fatalf("DroppedCount = %d, want -1", got)
	}
	if l.Path() != "" {
		t.Fatalf("Path on nil logger should be empty")
	}
}

func TestNewLoggerUsesDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	l, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	want := filepath.Join(cfg.DataDir, "audit.jsonl")
	if l.Path() != want {
		t.Fatalf("Path = %q, want %q", l.Path(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("audit file not created: %v", err)
	}
}

func TestLogWritesChainedEntries(t *testing.T) {
	l := newTestLogger(t, 1<<20, 3)

	l.Log(EventUninstallRequested, "run-1", map[string]any{"power": "restart"})
	l.Log(EventRemovalExecuted, "run-1", map[string]any{"exitCode": 0})
	l.Log(EventPowerAction, "run-1", nil)

	entries := readEntries(t, l.Path())
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].PrevHash != genesisHash {
		t.Errorf("first prevHash = %q, want %q", entries[0].PrevHash, genesisHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].EntryHash {
			t.Errorf("entry %d not linked to predecessor", i)
		}
	}
	if entries[1].RunID != "run-1" || entries[1].EventType != EventRemovalExecuted {
		t.Errorf("unexpected entry: %+v", entries[1])
	}

	n, err := Verify(l.Path())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 3 {
		t.Fatalf("Verify checked %d entries, want 3", n)
	}
}

func TestChainContinuesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	first, err := open(path, 1<<20, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first.Log(EventDetection, "run-1", nil)
	first.Close()

	second, err := open(path, 1<<20, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second.Log(EventDetection, "run-2", nil)
	second.Close()

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].PrevHash != entries[0].EntryHash {
		t.Fatalf("second run did not continue the chain")
	}
	if _, err := Verify(path); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t, 1<<20, 3)
	l.Log(EventDetection, "run", map[string]any{"version": "537.58"})
	l.Log(EventDetection, "run", map[string]any{"version": "537.58"})
	l.Close()

	entries := readEntries(t, l.Path())
	entries[0].Details["version"] = "999.99"

	f, err := os.Create(l.Path())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, e := range entries {
		data, _ := json.Marshal(e)
		f.Write(append(data, '\n'))
	}
	f.Close()

	if _, err := Verify(l.Path()); err == nil {
		t.Fatal("Verify should fail on a modified entry")
	}
}

func TestVerifyAcceptsNonUTF8Details(t *testing.T) {
	l := newTestLogger(t, 1<<20, 3)
	// shutdown.exe stderr in an OEM codepage
	l.Log(EventUninstallFailed, "run\xff", map[string]any{
		"error": "shutdown exited with status 5: Acc\x8as refus\x82",
		"args":  []string{"/r", "\x82"},
	})
	l.Log(EventPowerAction, "run", nil)
	l.Close()

	n, err := Verify(l.Path())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 2 {
		t.Fatalf("Verify checked %d entries, want 2", n)
	}
	entries := readEntries(t, l.Path())
	if got := entries[0].Details["error"].(string); !strings.Contains(got, "Acc\uFFFDs refus\uFFFD") {
		t.Fatalf("details not sanitized: %q", got)
	}
}

func TestVerifyRejectsTruncatedHead(t *testing.T) {
	l := newTestLogger(t, 1<<20, 3)
	for i := 0; i < 3; i++ {
		l.Log(EventDetection, "run", map[string]any{"i": i})
	}
	l.Close()

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.SplitAfterN(string(data), "\n", 2)
	if err := os.WriteFile(l.Path(), []byte(lines[1]), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Verify(l.Path()); err == nil {
		t.Fatal("Verify should fail when the first entry is missing")
	}
}

func TestVerifyAcceptsRotatedFileHead(t *testing.T) {
	l := newTestLogger(t, 400, 2)
	for i := 0; i < 4; i++ {
		l.Log(EventDetection, "run", map[string]any{"i": i})
	}
	l.Close()

	for _, path := range []string{l.Path(), l.Path() + ".1"} {
		if _, err := Verify(path); err != nil {
			t.Fatalf("Verify(%s): %v", filepath.Base(path), err)
		}
	}
}

func TestRotationWritesSentinel(t *testing.T) {
	l := newTestLogger(t, 400, 2)

	for i := 0; i < 6; i++ {
		l.Log(EventDetection, "run", map[string]any{"i": i})
	}

	if _, err := os.Stat(l.Path() + ".1"); err != nil {
		t.Fatalf("expected rotated backup: %v", err)
	}

	entries := readEntries(t, l.Path())
	if len(entries) == 0 || entries[0].EventType != EventLogRotated {
		t.Fatalf("current file should start with a rotation sentinel")
	}

	old := readEntries(t, l.Path()+".1")
	if entries[0].PrevHash != old[len(old)-1].EntryHash {
		t.Fatalf("sentinel not linked to last entry of the previous file")
	}
	if _, err := os.Stat(l.Path() + ".3"); !os.IsNotExist(err) {
		t.Fatalf("backups beyond maxBackups should not exist")
	}
}

func TestCriticalEventsAreWritten(t *testing.T) {
	l := newTestLogger(t, 1<<20, 3)
	for event := range criticalEvents {
		l.Log(event, "run", nil)
	}
	if got := len(readEntries(t, l.Path())); got != len(criticalEvents) {
		t.Fatalf("got %d entries, want %d", got, len(criticalEvents))
	}
	if l.DroppedCount() != 0 {
		t.Fatalf("DroppedCount = %d, want 0", l.DroppedCount())
	}
}

func TestDroppedCountOnWriteFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file handle semantics differ on windows")
	}
	l := newTestLogger(t, 1<<20, 3)

	l.mu.Lock()
	l.file.Close()
	ro, err := os.Open(l.filePath)
	if err != nil {
		l.mu.Unlock()
		t.Fatalf("open read-only: %v", err)
	}
	l.file = ro
	l.mu.Unlock()

	l.Log(EventDetection, "run", nil)
	if got := l.DroppedCount(); got != 1 {
		t.Fatalf("DroppedCount = %d, want 1", got)
	}
	if l.prevHash != genesisHash {
		t.Fatalf("failed write must not advance the chain")
	}
}
