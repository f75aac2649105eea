package sonic

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PortEntry is one row of a port_config.ini file
type PortEntry struct {
	Lanes string `json:"lanes,omitempty"`
	Alias string `json:"alias,omitempty"`
	Index string `json:"index,omitempty"`
	Speed string `json:"speed,omitempty"`
}

// PortConfigPath resolves the port_config.ini file for a hardware SKU.
// Vendors are inconsistent about casing and separators, so several
// filename variants are tried in order.
func PortConfigPath(dir, hwsku string) (string, bool) {
	candidates := []string{
		hwsku + ".ini",
		strings.ToLower(hwsku) + ".ini",
		strings.ReplaceAll(hwsku, "-", "_") + ".ini",
		strings.ToLower(strings.ReplaceAll(hwsku, "-", "_")) + ".ini",
	}

	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// ListHWSKUs returns the hardware SKUs that have a port config file in
// dir, sorted by name.
func ListHWSKUs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.ini"))
	if err != nil {
		return nil, fmt.Errorf("failed to list port configs: %w", err)
	}

	hwskus := make([]string, 0, len(matches))
	for _, match := range matches {
		hwskus = append(hwskus, strings.TrimSuffix(filepath.Base(match), ".ini"))
	}
	sort.Strings(hwskus)
	return hwskus, nil
}

// ParsePortConfig reads a port_config.ini file into port entries keyed
// by port name. The format is whitespace-separated columns
// (name, lanes, alias, index, speed); missing trailing columns are
// left empty.
func ParsePortConfig(path string) (map[string]PortEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open port config: %w", err)
	}
	defer file.Close()

	ports := make(map[string]PortEntry)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed port config line in %s: %q", path, line)
		}

		entry := PortEntry{Lanes: fields[1]}
		if len(fields) > 2 {
			entry.Alias = fields[2]
		}
		if len(fields) > 3 {
			entry.Index = fields[3]
		}
		if len(fields) > 4 {
			entry.Speed = fields[4]
		}
		ports[fields[0]] = entry
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read port config: %w", err)
	}
	return ports, nil
}
