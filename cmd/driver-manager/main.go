package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/driver-manager/internal/audit"
	"github.com/breeze-rmm/driver-manager/internal/uninstall"
)

const appName = "driver-manager"

var (
	version      = "0.1.0"
	cfgFile      string
	assumeYes    bool
	logLevel     string
	logFormat    string
	outputFormat string
	powerFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "driver-manager [/uninstallrestart | /uninstallnorestart | /uninstallshutdown]",
	Short: "NVIDIA display driver manager",
	Long: `driver-manager reports the installed NVIDIA display driver version and
removes third-party driver packages, optionally restarting or shutting down
the machine afterwards.

Run without arguments to detect the installed version.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the installed driver version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		a.advise()
		_, err = a.detect(cmd.Context(), outputFormat)
		return err
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the driver packages and apply a power action",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := uninstall.ParsePowerAction(powerFlag)
		if err != nil {
			return err
		}
		return detectAndUninstall(cmd, action)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify the audit log hash chain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		path := a.auditPath()
		if len(args) == 1 {
			path = args[0]
		}
		n, err := audit.Verify(path)
		if err != nil {
			return fmt.Errorf("audit log %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries verified\n", path, n)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "driver-manager v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is driver-manager.yaml in the config directory)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to the uninstall confirmation")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	detectCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, yaml)")
	uninstallCmd.Flags().StringVar(&powerFlag, "power", "none", "power action after removal (none, restart, shutdown, shutdown-delayed)")

	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errUninstallFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// runRoot handles the bare invocation and the positional directives.
func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		a.advise()
		_, err = a.detect(cmd.Context(), "text")
		return err
	}

	action, err := directiveAction(args[0])
	if err != nil {
		return err
	}
	return detectAndUninstall(cmd, action)
}

func directiveAction(arg string) (uninstall.PowerAction, error) {
	if !uninstall.IsDirective(arg) {
		return uninstall.PowerNone, fmt.Errorf("unknown command %q for %q", arg, appName)
	}
	return uninstall.ParseDirective(arg)
}

func detectAndUninstall(cmd *cobra.Command, action uninstall.PowerAction) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	a.advise()
	if _, err := a.detect(cmd.Context(), "text"); err != nil {
		return err
	}
	return a.uninstall(cmd.Context(), action)
}
