package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/metalbox-io/sonic-manager/internal/config"
	"github.com/metalbox-io/sonic-manager/internal/daemon"
	"github.com/metalbox-io/sonic-manager/internal/inventory"
	"github.com/metalbox-io/sonic-manager/internal/logging"
	"github.com/metalbox-io/sonic-manager/internal/sonic"
	"github.com/metalbox-io/sonic-manager/internal/stream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	configPath string
	debug      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sonic-manager",
		Short:         "Standalone SONiC configuration management",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newSyncCmd(),
		newExportCmd(),
		newConfigInfoCmd(),
		newWatchCmd(),
		newDaemonCmd(),
	)

	return root
}

// loadClients builds the injected clients used by one-shot commands.
// mutate, when non-nil, adjusts the loaded config before the clients
// are constructed.
func loadClients(mutate func(*config.Config)) (*config.Config, *zap.Logger, *sonic.Syncer, *stream.Channel, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := logging.NewConsole(debug)

	inv := inventory.New(cfg.NetBox, logger)
	channel := stream.New(cfg.Stream, logger)
	syncer := sonic.NewSyncer(inv, channel, cfg.SONiC, logger)

	return cfg, logger, syncer, channel, nil
}

func newSyncCmd() *cobra.Command {
	var (
		deviceName string
		noDiff     bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync SONiC configurations for eligible devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, syncer, channel, err := loadClients(nil)
			if err != nil {
				return err
			}
			defer channel.Close()
			defer logger.Sync()

			result, err := syncer.Sync(context.Background(), sonic.SyncOptions{
				DeviceName: deviceName,
				ShowDiff:   !noDiff,
				Out:        cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			if len(result) == 0 {
				cmd.Println("No devices were synced")
				return nil
			}

			cmd.Printf("Successfully synced %d device(s)\n", len(result))
			for name, doc := range result {
				cmd.Printf("  - %s: %d ports configured\n", name, len(doc.Port))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceName, "device", "", "name of specific device to sync")
	cmd.Flags().BoolVar(&noDiff, "no-diff", false, "disable diff output")

	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		outputDir  string
		deviceName string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export SONiC configurations to files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, syncer, channel, err := loadClients(func(cfg *config.Config) {
				if outputDir != "" {
					cfg.SONiC.ExportDir = outputDir
				}
			})
			if err != nil {
				return err
			}
			defer channel.Close()
			defer logger.Sync()

			result, err := syncer.Sync(context.Background(), sonic.SyncOptions{
				DeviceName: deviceName,
			})
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if len(result) == 0 {
				cmd.Println("No devices were exported")
				return nil
			}

			exportDir := cfg.SONiC.ExportDir
			cmd.Printf("Successfully exported %d device(s)\n", len(result))
			cmd.Printf("Files saved to: %s\n", exportDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory for config files")
	cmd.Flags().StringVar(&deviceName, "device", "", "name of specific device to export")

	return cmd
}

func newConfigInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-info",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			token := "Not set"
			if cfg.NetBox.Token != "" {
				token = "***"
			}

			cmd.Println("SONiC Manager Configuration:")
			cmd.Printf("  NetBox URL: %s\n", cfg.NetBox.URL)
			cmd.Printf("  NetBox Token: %s\n", token)
			cmd.Printf("  Device Filter: %s\n", cfg.NetBox.Filter)
			cmd.Printf("  Stream URLs: %v\n", cfg.Stream.URLs)
			cmd.Printf("  Stream Namespace: %s\n", cfg.Stream.Namespace)
			cmd.Printf("  Export Directory: %s\n", cfg.SONiC.ExportDir)
			cmd.Printf("  Export Prefix: %s\n", cfg.SONiC.ExportPrefix)
			cmd.Printf("  Export Suffix: %s\n", cfg.SONiC.ExportSuffix)
			cmd.Printf("  Export Identifier: %s\n", cfg.SONiC.ExportIdentifier)
			cmd.Printf("  Port Config Directory: %s\n", cfg.SONiC.PortConfigDir)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var (
		timeout   time.Duration
		playRecap bool
	)

	cmd := &cobra.Command{
		Use:   "watch TASK_ID",
		Short: "Stream a remote task's output and exit with its return code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, syncer, channel, err := loadClients(nil)
			if err != nil {
				return err
			}
			defer channel.Close()
			defer logger.Sync()

			if timeout == 0 {
				timeout = cfg.Daemon.FetchTimeout
			}

			rc := syncer.WaitForTask(args[0], timeout, cmd.OutOrStdout(), playRecap)
			if rc != 0 {
				return fmt.Errorf("task %s finished with return code %d", args[0], rc)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "idle timeout for the task output stream (default from config)")
	cmd.Flags().BoolVar(&playRecap, "play-recap", false, "warn when the PLAY RECAP marker is seen before completion")

	return cmd
}

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "daemon [run|install|uninstall|start|stop]",
		Short:     "Run periodic sync as a daemon or manage the system service",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"run", "install", "uninstall", "start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "run"
			if len(args) > 0 {
				action = args[0]
			}

			prg := &daemonProgram{}
			svc, err := service.New(prg, daemon.ServiceConfig())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}

			if action != "run" {
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s failed: %w", action, err)
				}
				cmd.Printf("Service %s succeeded\n", action)
				return nil
			}

			return svc.Run()
		},
	}

	return cmd
}

// daemonProgram adapts the daemon to the platform service interface
type daemonProgram struct {
	daemon *daemon.Daemon
	logger *zap.Logger
}

func (p *daemonProgram) Start(s service.Service) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	p.logger = logger

	logger.Info("Starting sonic-manager", zap.String("version", version))

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}
	p.daemon = d

	return d.Start()
}

func (p *daemonProgram) Stop(s service.Service) error {
	if p.daemon != nil {
		return p.daemon.Shutdown()
	}
	return nil
}
