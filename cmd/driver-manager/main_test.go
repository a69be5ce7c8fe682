package main

import (
	"strings"
	"testing"

	"github.com/breeze-rmm/driver-manager/internal/uninstall"
)

func TestDirectiveAction(t *testing.T) {
	tests := []struct {
		arg     string
		want    uninstall.PowerAction
		wantErr bool
	}{
		{"/uninstallrestart", uninstall.PowerRestart, false},
		{"/UNINSTALLNORESTART", uninstall.PowerNone, false},
		{"/UninstallShutdown", uninstall.PowerShutdown, false},
		{"/uninstallnow", uninstall.PowerNone, true},
		{"detcet", uninstall.PowerNone, true},
	}
	for _, tt := range tests {
		got, err := directiveAction(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("directiveAction(%q) err = %v, wantErr %v", tt.arg, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("directiveAction(%q) = %v, want %v", tt.arg, got, tt.want)
		}
	}
}

func TestUnknownArgumentNamesTheCommand(t *testing.T) {
	_, err := directiveAction("detcet")
	if err == nil || !strings.Contains(err.Error(), `"driver-manager"`) {
		t.Fatalf("err = %v, want it to name driver-manager", err)
	}
	if rootCmd.Name() != appName {
		t.Fatalf("root command name = %q, want %q", rootCmd.Name(), appName)
	}
	if rootCmd.RunE == nil {
		t.Fatal("root command has no RunE")
	}
}

func TestRootCommandWiring(t *testing.T) {
	for _, name := range []string{"detect", "uninstall", "audit", "version"} {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "yes", "log-level", "log-format"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
	if err := rootCmd.Args(rootCmd, []string{"/uninstallrestart", "extra"}); err == nil {
		t.Error("root should reject more than one directive")
	}
}

func TestVersionCommand(t *testing.T) {
	var out stringWriter
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)
	if string(out) != "driver-manager v"+version+"\n" {
		t.Fatalf("version output = %q", string(out))
	}
}

type stringWriter []byte

func (w *stringWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
