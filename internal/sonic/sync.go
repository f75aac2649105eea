package sonic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/metalbox-io/sonic-manager/internal/config"
	"github.com/metalbox-io/sonic-manager/internal/inventory"
	"github.com/metalbox-io/sonic-manager/internal/stream"
	"go.uber.org/zap"
)

// Syncer assembles and exports SONiC config documents for eligible
// devices, feeding on the inventory resolver and (for remote apply
// tasks) the task telemetry channel.
type Syncer struct {
	inventory *inventory.Client
	channel   *stream.Channel
	cfg       config.SONiCConfig
	logger    *zap.Logger
}

// NewSyncer creates a syncer. Both clients are owned by the caller.
func NewSyncer(inv *inventory.Client, channel *stream.Channel, cfg config.SONiCConfig, logger *zap.Logger) *Syncer {
	return &Syncer{
		inventory: inv,
		channel:   channel,
		cfg:       cfg,
		logger:    logger,
	}
}

// SyncOptions tunes one sync run
type SyncOptions struct {
	// DeviceName restricts the run to one device. Empty means all
	// devices matching the eligibility filter.
	DeviceName string

	// ShowDiff writes a diff against the previously exported document
	// to Out for every changed device.
	ShowDiff bool

	// Out receives diff output. Nil discards it.
	Out io.Writer
}

// Sync resolves facts and exports one config document per device.
// Inventory failures degrade per-device (a device with no reachable
// facts still gets a minimal document); only local export failures
// abort the run.
func (s *Syncer) Sync(ctx context.Context, opts SyncOptions) (map[string]*ConfigDB, error) {
	logger := s.logger.With(zap.String("run_id", uuid.NewString()))

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	var devices []inventory.Device
	if opts.DeviceName != "" {
		device := s.inventory.GetDevice(ctx, opts.DeviceName)
		if device == nil {
			return nil, fmt.Errorf("device %q not found in inventory", opts.DeviceName)
		}
		devices = []inventory.Device{*device}
	} else {
		devices = s.inventory.ListDevices(ctx)
	}

	logger.Info("Starting sync", zap.Int("devices", len(devices)))

	result := make(map[string]*ConfigDB, len(devices))
	for i := range devices {
		device := &devices[i]
		doc, err := s.syncDevice(ctx, logger, device, opts)
		if err != nil {
			return nil, err
		}
		result[device.Name] = doc
	}

	logger.Info("Sync complete", zap.Int("devices", len(result)))
	return result, nil
}

func (s *Syncer) syncDevice(ctx context.Context, logger *zap.Logger, device *inventory.Device, opts SyncOptions) (*ConfigDB, error) {
	facts := DeviceFacts{
		Device:    device,
		Loopbacks: s.inventory.Loopbacks(ctx, device),
		OOBIP:     s.inventory.OOBIP(ctx, device),
		VLANs:     s.inventory.VLANs(ctx, device),
	}

	ports := s.devicePorts(device)
	doc := BuildConfig(facts, ports)

	rendered, err := renderConfig(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render config for %s: %w", device.Name, err)
	}

	path := s.ExportPath(device)

	if opts.ShowDiff {
		previous, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			logger.Warn("Cannot read previous export for diff",
				zap.String("device", device.Name),
				zap.Error(err))
		}
		if diff := Diff(string(previous), string(rendered)); diff != "" {
			fmt.Fprintf(opts.Out, "--- %s\n%s", device.Name, diff)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, rendered, 0644); err != nil {
		return nil, fmt.Errorf("failed to export config for %s: %w", device.Name, err)
	}

	logger.Info("Exported device config",
		zap.String("device", device.Name),
		zap.String("path", path),
		zap.Int("ports", len(doc.Port)))

	return doc, nil
}

// devicePorts looks up the hardware's port table. A missing or
// unparseable port config yields an empty table, not an error.
func (s *Syncer) devicePorts(device *inventory.Device) map[string]PortEntry {
	hwsku := device.DeviceType.Model
	if hwsku == "" {
		return nil
	}

	path, ok := PortConfigPath(s.cfg.PortConfigDir, hwsku)
	if !ok {
		s.logger.Debug("No port config for hardware SKU",
			zap.String("device", device.Name),
			zap.String("hwsku", hwsku))
		return nil
	}

	ports, err := ParsePortConfig(path)
	if err != nil {
		s.logger.Error("Failed to parse port config",
			zap.String("device", device.Name),
			zap.String("path", path),
			zap.Error(err))
		return nil
	}
	return ports
}

// ExportPath returns the export file path for a device
func (s *Syncer) ExportPath(device *inventory.Device) string {
	identifier := device.Name
	if s.cfg.ExportIdentifier == "id" {
		identifier = strconv.Itoa(device.ID)
	}
	return filepath.Join(s.cfg.ExportDir, s.cfg.ExportPrefix+identifier+s.cfg.ExportSuffix)
}

// WaitForTask blocks on the telemetry channel until the given remote
// task completes, streaming its output to out, and returns the task's
// return code.
func (s *Syncer) WaitForTask(taskID string, timeout time.Duration, out io.Writer, playRecap bool) int {
	return s.channel.Fetch(taskID, timeout, out, stream.FetchOptions{PlayRecapDetection: playRecap})
}

func renderConfig(doc *ConfigDB) ([]byte, error) {
	rendered, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(rendered, '\n'), nil
}
