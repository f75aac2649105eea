package inventory

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/metalbox-io/sonic-manager/internal/config"
	"go.uber.org/zap"
)

// Client resolves device facts from the inventory system.
//
// Inventory data is best-effort enrichment: every lookup degrades to an
// empty result on failure (connection absent, remote error, malformed
// response) and logs instead of returning an error. An unreachable
// inventory must never block the configuration pipeline.
type Client struct {
	api    *api // nil when no URL or token is configured
	logger *zap.Logger
	filter []FilterClause
}

// New creates an inventory client. When URL or token is missing the
// client is constructed without a connection and every lookup returns
// its empty result.
func New(cfg config.NetBoxConfig, logger *zap.Logger) *Client {
	c := &Client{logger: logger}

	if cfg.URL != "" && cfg.Token != "" {
		c.api = newAPI(cfg.URL, cfg.Token, cfg.IgnoreSSLErrors, cfg.Timeout)
		if cfg.IgnoreSSLErrors {
			logger.Warn("Inventory TLS certificate verification is disabled")
		}
	} else {
		logger.Warn("Inventory URL or token not configured, device facts will be empty")
	}

	c.filter = parseDeviceFilter(cfg.Filter, logger)

	return c
}

// Connected reports whether an inventory connection was configured
func (c *Client) Connected() bool {
	return c.api != nil
}

// parseDeviceFilter decodes the configured JSON filter expression. A
// malformed expression falls back to the default clause; an operator
// typo must not take the whole pipeline down.
func parseDeviceFilter(raw string, logger *zap.Logger) []FilterClause {
	if raw == "" {
		raw = config.DefaultDeviceFilter
	}

	var clauses []FilterClause
	if err := json.Unmarshal([]byte(raw), &clauses); err != nil {
		logger.Error("Failed to parse device filter, using default",
			zap.String("filter", raw),
			zap.Error(err))
		clauses = []FilterClause{{State: "active", Tags: []string{"managed-by-metalbox"}}}
	}
	return clauses
}

// DeviceFilter returns the parsed device eligibility filter
func (c *Client) DeviceFilter() []FilterClause {
	return c.filter
}

// ListDevices returns all devices matching any clause of the
// eligibility filter, deduplicated by device id.
func (c *Client) ListDevices(ctx context.Context) []Device {
	if c.api == nil {
		return nil
	}

	seen := make(map[int]bool)
	var devices []Device

	for _, clause := range c.filter {
		params := clauseParams(clause)
		result, err := c.api.listDevices(ctx, params)
		if err != nil {
			c.logger.Error("Error listing devices",
				zap.Any("clause", clause),
				zap.Error(err))
			continue
		}
		for _, device := range result {
			if !seen[device.ID] {
				seen[device.ID] = true
				devices = append(devices, device)
			}
		}
	}

	return devices
}

// GetDevice looks up a single device by name. Returns nil when the
// device does not exist or the lookup fails.
func (c *Client) GetDevice(ctx context.Context, name string) *Device {
	if c.api == nil {
		return nil
	}

	params := urlValues("name", name)
	devices, err := c.api.listDevices(ctx, params)
	if err != nil {
		c.logger.Error("Error getting device",
			zap.String("device", name),
			zap.Error(err))
		return nil
	}
	if len(devices) == 0 {
		return nil
	}
	return &devices[0]
}

// Loopbacks returns every interface on the device whose name contains
// "loopback" (case-insensitive). Empty on any failure.
func (c *Client) Loopbacks(ctx context.Context, device *Device) []Interface {
	if c.api == nil {
		return nil
	}

	params := urlValues(
		"device_id", strconv.Itoa(device.ID),
		"name__ic", "loopback",
	)
	interfaces, err := c.api.listInterfaces(ctx, params)
	if err != nil {
		c.logger.Error("Error getting loopbacks for device",
			zap.String("device", device.Name),
			zap.Error(err))
		return nil
	}

	// The server-side name filter already matches case-insensitively;
	// keep a local guard so the contract does not depend on it.
	var loopbacks []Interface
	for _, iface := range interfaces {
		if strings.Contains(strings.ToLower(iface.Name), "loopback") {
			loopbacks = append(loopbacks, iface)
		}
	}
	return loopbacks
}

// OOBIP returns the out-of-band management address of the device with
// its prefix length stripped, or "" when none is found.
//
// First-match policy: management-only interfaces are scanned in
// inventory order and the first assigned address wins. Any management
// IP is good enough; this is not an exhaustiveness guarantee.
func (c *Client) OOBIP(ctx context.Context, device *Device) string {
	if c.api == nil {
		return ""
	}

	params := urlValues(
		"device_id", strconv.Itoa(device.ID),
		"mgmt_only", "true",
	)
	interfaces, err := c.api.listInterfaces(ctx, params)
	if err != nil {
		c.logger.Error("Error getting OOB IP for device",
			zap.String("device", device.Name),
			zap.Error(err))
		return ""
	}

	for _, iface := range interfaces {
		addresses, err := c.api.listIPAddresses(ctx, urlValues(
			"assigned_object_id", strconv.Itoa(iface.ID),
		))
		if err != nil {
			c.logger.Error("Error getting OOB IP for device",
				zap.String("device", device.Name),
				zap.String("interface", iface.Name),
				zap.Error(err))
			return ""
		}
		for _, addr := range addresses {
			ip, _, _ := strings.Cut(addr.Address, "/")
			return ip
		}
	}

	return ""
}

// VLANs returns the union of untagged and tagged VLANs across all
// interfaces of the device, deduplicated by VLAN id. Order is not
// meaningful. Empty on any failure.
func (c *Client) VLANs(ctx context.Context, device *Device) []VLAN {
	if c.api == nil {
		return nil
	}

	params := urlValues("device_id", strconv.Itoa(device.ID))
	interfaces, err := c.api.listInterfaces(ctx, params)
	if err != nil {
		c.logger.Error("Error getting VLANs for device",
			zap.String("device", device.Name),
			zap.Error(err))
		return nil
	}

	seen := make(map[int]bool)
	var vlans []VLAN

	add := func(v VLAN) {
		if !seen[v.ID] {
			seen[v.ID] = true
			vlans = append(vlans, v)
		}
	}

	for _, iface := range interfaces {
		if iface.UntaggedVLAN != nil {
			add(*iface.UntaggedVLAN)
		}
		for _, v := range iface.TaggedVLANs {
			add(v)
		}
	}

	return vlans
}

func clauseParams(clause FilterClause) url.Values {
	params := make(url.Values)
	if clause.State != "" {
		params["status"] = []string{clause.State}
	}
	if len(clause.Tags) > 0 {
		params["tag"] = clause.Tags
	}
	return params
}

// urlValues builds url.Values from alternating key/value pairs
func urlValues(pairs ...string) url.Values {
	params := make(url.Values, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		params[pairs[i]] = append(params[pairs[i]], pairs[i+1])
	}
	return params
}
