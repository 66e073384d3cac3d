// Weft — slice orchestration for network testbeds
//
// weft builds multi-node experiment topologies from YAML manifests,
// submits them to the testbed control framework, polls reservations
// until they stabilize, and configures the provisioned nodes over SSH
// through the testbed bastion.
//
// Usage:
//
//	weft submit -f <manifest>        Submit a slice manifest
//	weft wait <slice>                Poll a slice until it settles
//	weft status <slice>              Refresh and show live slice state
//	weft show <slice>                Show the stored slice record
//	weft list                        List stored slices
//	weft configure <slice>           Apply post-boot node configuration
//	weft exec <slice> <node> <cmd>   Run a command on a node
//	weft renew <slice> --days <n>    Extend the slice lease
//	weft delete <slice>              Release a slice's resources
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/weft-testbed/weft/pkg/audit"
	"github.com/weft-testbed/weft/pkg/bastion"
	"github.com/weft-testbed/weft/pkg/cli"
	"github.com/weft-testbed/weft/pkg/config"
	"github.com/weft-testbed/weft/pkg/orchestrator"
	"github.com/weft-testbed/weft/pkg/settings"
	"github.com/weft-testbed/weft/pkg/statestore"
	"github.com/weft-testbed/weft/pkg/tokens"
	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
	"github.com/weft-testbed/weft/pkg/version"
)

var (
	configPath  string
	projectFlag string
	verbose     bool

	// Global state, loaded by PersistentPreRunE
	cfg          *config.Config
	userSettings *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "weft",
	Short:             "Slice orchestration for network testbeds",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Weft provisions multi-node experiment topologies (slices) on a
shared network testbed.

A slice manifest names the nodes, components, and networks you want;
weft submits it, polls the reservations until every one is active, and
configures the nodes over SSH through the testbed bastion.

  weft submit -f slice.yml --wait --configure`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Settings and help need no testbed configuration
		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		if configPath != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Apply defaults from settings
		if cfg.ProjectID == "" {
			cfg.ProjectID = userSettings.DefaultProject
		}

		if err := cfg.ApplyLogging(); err != nil {
			return err
		}
		if verbose {
			util.SetLogLevel("debug")
		}

		// Initialize audit logger next to the slice records
		auditLogger, err := audit.NewFileLogger(filepath.Join(cfg.StateDir, "audit.log"), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.weft/weft.yml)")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "project the slice is charged to")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newWaitCmd(),
		newShowCmd(),
		newListCmd(),
		newDeleteCmd(),
		newRenewCmd(),
		newConfigureCmd(),
		newExecCmd(),
		newUploadCmd(),
		newDownloadCmd(),
		newSSHCmd(),
		newSSHTestCmd(),
		newAuditCmd(),
		newSettingsCmd(),
		newVersionCmd(),
	)
}

// isSettingsOrHelp reports whether cmd (or a parent) needs no config.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// requireProject resolves the project from: --project flag > config/env >
// settings > error.
func requireProject() (string, error) {
	if projectFlag != "" {
		return projectFlag, nil
	}
	if cfg.ProjectID != "" {
		return cfg.ProjectID, nil
	}
	return "", fmt.Errorf("project required: use --project, set WEFT_PROJECT_ID, or run 'weft settings set project <id>'")
}

// newOrchestratorClient builds the control framework adapter with
// file-backed tokens.
func newOrchestratorClient() (orchestrator.Client, error) {
	return orchestrator.NewRESTClient(orchestrator.RESTConfig{
		Endpoint: cfg.OrchestratorEndpoint(),
		Tokens:   tokens.NewFileProvider(cfg.TokenLocation),
	})
}

// openStore picks the state backend: redis when configured, local slice
// records otherwise.
func openStore() statestore.Store {
	addr := cfg.StateRedisAddr
	if addr == "" && userSettings.GetStateBackend() == "redis" {
		addr = userSettings.RedisAddr
	}
	if addr != "" {
		return statestore.NewRedisStore(addr, "", 0, cfg.ProjectID)
	}
	return statestore.NewFileStore(cfg.SliceDir())
}

// loadSlice restores a slice graph from the state store by name.
func loadSlice(ctx context.Context, store statestore.Store, name string) (*topology.Slice, error) {
	rec, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return topology.FromDocument(rec.Topology)
}

// saveSlice persists the slice and its latest snapshot. Failures are
// warnings: the orchestrator already acted, losing the local record must
// not fail the operation.
func saveSlice(ctx context.Context, store statestore.Store, slice *topology.Slice, snap *topology.Snapshot) {
	if err := store.Save(ctx, statestore.Record(slice, snap)); err != nil {
		util.Warnf("Could not save slice record: %v", err)
	}
}

// slicePassphrase returns the passphrase for the slice private key,
// prompting on the terminal when the key is encrypted and none is
// configured.
func slicePassphrase() (string, error) {
	if cfg.SliceKeyPassphrase != "" {
		return cfg.SliceKeyPassphrase, nil
	}

	data, err := os.ReadFile(cfg.SlicePrivateKeyFile)
	if err != nil {
		return "", err
	}
	_, parseErr := ssh.ParsePrivateKey(data)
	if parseErr == nil {
		return "", nil
	}
	if !errors.As(parseErr, new(*ssh.PassphraseMissingError)) {
		return "", fmt.Errorf("parse %s: %w", cfg.SlicePrivateKeyFile, parseErr)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("slice key %s is encrypted: set slice_key_passphrase or WEFT_SLICE_KEY_PASSPHRASE", cfg.SlicePrivateKeyFile)
	}
	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", cfg.SlicePrivateKeyFile)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// newChannel builds the bastion execution channel for remote operations
// on slice nodes.
func newChannel() (*bastion.Channel, error) {
	passphrase, err := slicePassphrase()
	if err != nil {
		return nil, err
	}
	return bastion.NewChannel(bastion.Config{
		Host:    cfg.BastionHost,
		User:    cfg.BastionUser,
		KeyPath: cfg.BastionKeyLocation,
	}, cfg.SlicePrivateKeyFile, passphrase)
}

// currentUser names the OS user for audit events.
func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

// logAudit records a CLI operation in the audit log. Best effort.
func logAudit(event *audit.Event) {
	if err := audit.Log(event); err != nil {
		util.Debugf("audit: %v", err)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version.Version == "dev" {
				fmt.Println("weft dev build (use 'make build' for version info)")
			} else {
				fmt.Printf("weft %s (%s)\n", version.Version, version.GitCommit)
			}
		},
	}
}

// Color helpers — delegate to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
