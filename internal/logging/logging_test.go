package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("detect")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("source finished", KeySource, "nvidia-smi")

	out := buf.String()
	if !strings.Contains(out, `msg="source finished"`) {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=detect") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "source=nvidia-smi") {
		t.Fatalf("expected source field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("uninstall")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)

	L("power").Debug("built command", "name", "shutdown")

	out := buf.String()
	if !strings.Contains(out, `"component":"power"`) {
		t.Fatalf("expected JSON component field, got: %s", out)
	}
	if !strings.Contains(out, `"level":"DEBUG"`) {
		t.Fatalf("expected debug level, got: %s", out)
	}
}

func TestInitSwitchesBetweenHandlerTypes(t *testing.T) {
	logger := L("cli").With("runId", "r1")

	var jsonBuf, textBuf, againBuf bytes.Buffer
	Init("json", "info", &jsonBuf)
	logger.Info("first")
	Init("text", "info", &textBuf)
	logger.Info("second")
	Init("JSON", "info", &againBuf)
	logger.Info("third")

	if !strings.Contains(jsonBuf.String(), `"msg":"first"`) || !strings.Contains(jsonBuf.String(), `"runId":"r1"`) {
		t.Fatalf("json output = %s", jsonBuf.String())
	}
	if !strings.Contains(textBuf.String(), "msg=second") || strings.Contains(textBuf.String(), "first") {
		t.Fatalf("text output = %s", textBuf.String())
	}
	if !strings.Contains(againBuf.String(), `"msg":"third"`) {
		t.Fatalf("second json output = %s", againBuf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should never return nil")
	}

	var buf bytes.Buffer
	Init("text", "info", &buf)
	ctx := NewContext(context.Background(), L("cli").With("directive", "/uninstallrestart"))
	FromContext(ctx).Info("running directive")

	if !strings.Contains(buf.String(), "directive=/uninstallrestart") {
		t.Fatalf("expected context logger attrs, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		" error ": "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRotatingWriterRollsOverToBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "driver-manager.log")
	rw, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer rw.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(name); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("expected no third backup, stat err = %v", err)
	}
}

func TestShiftBackupsDropsOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	for name, content := range map[string]string{path: "current", path + ".1": "one", path + ".2": "two"} {
		if err := os.WriteFile(name, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	if err := ShiftBackups(path, 2); err != nil {
		t.Fatalf("ShiftBackups: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("current file should have moved, stat err = %v", err)
	}
	for name, want := range map[string]string{path + ".1": "current", path + ".2": "one"} {
		got, err := os.ReadFile(name)
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v; want %q", filepath.Base(name), got, err, want)
		}
	}
	if BackupName(path, 0) != path {
		t.Errorf("BackupName(path, 0) = %q", BackupName(path, 0))
	}
}
