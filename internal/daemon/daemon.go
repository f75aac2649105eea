package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/kardianos/service"
	"github.com/metalbox-io/sonic-manager/internal/config"
	"github.com/metalbox-io/sonic-manager/internal/inventory"
	"github.com/metalbox-io/sonic-manager/internal/sonic"
	"github.com/metalbox-io/sonic-manager/internal/stream"
	"go.uber.org/zap"
)

// Daemon runs periodic config syncs until shut down
type Daemon struct {
	cfg       *config.Config
	logger    *zap.Logger
	channel   *stream.Channel
	syncer    *sonic.Syncer
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// New wires the inventory client, telemetry channel, and syncer, and
// schedules the periodic sync job. Both external connections may be
// degraded; the daemon still runs and exports what it can.
func New(cfg *config.Config, logger *zap.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	inv := inventory.New(cfg.NetBox, logger)
	channel := stream.New(cfg.Stream, logger)
	syncer := sonic.NewSyncer(inv, channel, cfg.SONiC, logger)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		cancel()
		channel.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		channel:   channel,
		syncer:    syncer,
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Daemon.SyncInterval),
		gocron.NewTask(d.runSync),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		channel.Close()
		return nil, fmt.Errorf("failed to schedule sync job: %w", err)
	}

	return d, nil
}

func (d *Daemon) runSync() {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Daemon.SyncInterval)
	defer cancel()

	result, err := d.syncer.Sync(ctx, sonic.SyncOptions{})
	if err != nil {
		d.logger.Error("Scheduled sync failed", zap.Error(err))
		return
	}
	d.logger.Info("Scheduled sync finished", zap.Int("devices", len(result)))
}

// Start begins the sync schedule without blocking. Used by the service
// wrapper; interactive callers use Run.
func (d *Daemon) Start() error {
	d.scheduler.Start()
	d.logger.Info("Daemon running",
		zap.Duration("sync_interval", d.cfg.Daemon.SyncInterval))
	return nil
}

// Run starts the daemon and blocks until a shutdown signal arrives
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		d.logger.Info("Received shutdown signal")
	case <-d.ctx.Done():
		d.logger.Info("Context cancelled")
	}

	return d.Shutdown()
}

// Shutdown stops the schedule and releases connections
func (d *Daemon) Shutdown() error {
	d.logger.Info("Shutting down daemon")

	d.cancel()

	if err := d.scheduler.Shutdown(); err != nil {
		d.logger.Error("Error shutting down scheduler", zap.Error(err))
	}

	d.channel.Close()
	d.logger.Sync()

	d.logger.Info("Daemon shutdown complete")
	return nil
}

// ServiceConfig describes the daemon to the platform service manager
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "sonic-manager",
		DisplayName: "SONiC Manager",
		Description: "Generates and exports SONiC configurations from the inventory source of truth",
		Arguments:   []string{"daemon", "run"},
	}
}
