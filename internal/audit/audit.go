package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/breeze-rmm/driver-manager/internal/config"
	"github.com/breeze-rmm/driver-manager/internal/logging"
)

var log = logging.L("audit")

// Event types for audit logging.
const (
	EventDetection          = "driver_detection"
	EventUninstallRequested = "uninstall_requested"
	EventUninstallDeclined  = "uninstall_declined"
	EventRemovalExecuted    = "removal_executed"
	EventUninstallFailed    = "uninstall_failed"
	EventPowerAction        = "power_action"
	EventLogRotated         = "log_rotated"
)

const genesisHash = "genesis"

// criticalEvents are event types that require fsync after writing. A power
// action may take the host down right after the write.
var criticalEvents = map[string]bool{
	EventRemovalExecuted: true,
	EventUninstallFailed: true,
	EventPowerAction:     true,
}

// Entry is a single audit log record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	RunID     string         `json:"runId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Logger writes tamper-evident JSONL audit logs with a SHA-256 hash chain.
// The chain continues across runs from the last entry in the file; on
// rotation a sentinel entry (EventLogRotated) opens the new file and links
// to the last entry of the old one.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger creates an audit logger writing to {dataDir}/audit.jsonl.
func NewLogger(cfg *config.Config) (*Logger, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create audit data dir: %w", err)
	}

	maxSize := cfg.AuditMaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.AuditMaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	l, err := open(filepath.Join(dataDir, "audit.jsonl"), int64(maxSize)*1024*1024, maxBackups)
	if err != nil {
		return nil, err
	}
	log.Debug("audit logger started", "path", l.filePath)
	return l, nil
}

func open(filePath string, maxSize int64, maxBackups int) (*Logger, error) {
	l := &Logger{
		filePath:   filePath,
		maxSize:    maxSize,
		maxBackups: maxBackups,
		prevHash:   genesisHash,
	}
	if last, ok := lastEntryHash(filePath); ok {
		l.prevHash = last
	}
	if err := l.openFile(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Log writes a single audit entry with hash chain linking.
// The hash chain is only advanced after a successful write, so a failed
// write leaves the next entry linked to the same prevHash.
// Safe to call on a nil receiver (no-op).
func (l *Logger) Log(eventType string, runID string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		RunID:     strings.ToValidUTF8(runID, "\uFFFD"),
		Details:   sanitizeDetails(details),
		PrevHash:  l.prevHash,
	}

	entryHash, err := computeHash(entry)
	if err != nil {
		log.Error("failed to compute audit entry hash", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	entry.EntryHash = entryHash

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error("failed to marshal audit entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	if l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit log rotation failed", logging.KeyError, err)
			l.dropped.Add(1)
			return
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("failed to write audit entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)
	l.prevHash = entry.EntryHash

	if criticalEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Error("failed to fsync critical audit entry", logging.KeyError, err, "eventType", eventType)
		}
	}
}

// Close flushes and closes the audit log file.
// Safe to call on a nil receiver (no-op).
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// DroppedCount returns the number of audit entries that failed to write.
// Returns -1 if the logger is nil (not initialized), distinguishing
// "logger not available" from "logger working with zero drops".
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// Verify re-computes every entry hash in filePath and checks that each entry
// links to its predecessor. It returns the number of entries checked.
func Verify(filePath string) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	count := 0
	prev := ""
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return count, fmt.Errorf("entry %d: %w", count+1, err)
		}
		want, err := computeHash(entry)
		if err != nil {
			return count, fmt.Errorf("entry %d: %w", count+1, err)
		}
		if entry.EntryHash != want {
			return count, fmt.Errorf("entry %d: hash mismatch", count+1)
		}
		if prev == "" && entry.PrevHash != genesisHash && entry.EventType != EventLogRotated {
			return count, fmt.Errorf("entry %d: file does not start at genesis or a rotation sentinel", count+1)
		}
		if prev != "" && entry.PrevHash != prev {
			return count, fmt.Errorf("entry %d: chain broken (prevHash %s, expected %s)", count+1, entry.PrevHash, prev)
		}
		prev = entry.EntryHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read audit log: %w", err)
	}
	return count, nil
}

// sanitizeDetails replaces invalid UTF-8 in string values. encoding/json
// rewrites such bytes on marshal, so unsanitized input would hash differently
// once read back.
func sanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[strings.ToValidUTF8(k, "\uFFFD")] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return strings.ToValidUTF8(val, "\uFFFD")
	case error:
		return strings.ToValidUTF8(val.Error(), "\uFFFD")
	case map[string]any:
		return sanitizeDetails(val)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = strings.ToValidUTF8(s, "\uFFFD")
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

// computeHash produces the SHA-256 hash for an audit entry.
// Fields are length-prefixed so a delimiter inside one field cannot
// collide with another field combination.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.RunID, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// lastEntryHash returns the hash of the last entry in filePath.
func lastEntryHash(filePath string) (string, bool) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var last string
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err == nil && entry.EntryHash != "" {
			last = entry.EntryHash
		}
	}
	return last, last != ""
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	prevHashBeforeRotation := l.prevHash

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := logging.ShiftBackups(l.filePath, l.maxBackups); err != nil {
		log.Warn("audit log rotation: could not shift backups", logging.KeyError, err)
	}
	if err := l.openFile(); err != nil {
		return err
	}

	// A new file always opens with a sentinel linked to the old tail.
	if err := l.writeSentinel(prevHashBeforeRotation); err != nil {
		log.Error("rotation sentinel failed, hash chain broken", logging.KeyError, err)
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
	}
	return nil
}

func (l *Logger) writeSentinel(prevHash string) error {
	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  prevHash,
		Details:   sanitizeDetails(map[string]any{"previousFile": l.backupName(1)}),
	}
	hash, err := computeHash(sentinel)
	if err != nil {
		return err
	}
	sentinel.EntryHash = hash

	data, err := json.Marshal(sentinel)
	if err != nil {
		return err
	}
	n, err := l.file.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	l.written += int64(n)
	l.prevHash = hash
	return nil
}

func (l *Logger) backupName(index int) string {
	return logging.BackupName(l.filePath, index)
}
