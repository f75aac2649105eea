package sonic

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePortConfig = `# name          lanes               alias     index    speed
Ethernet0       1,2,3,4             Eth1/1    1        100000
Ethernet4       5,6,7,8             Eth1/2    2        100000

Ethernet8       9,10,11,12          Eth2/1    3        40000
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestPortConfigPath tests the filename fallback chain
func TestPortConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		hwsku    string
		wantFile string
		wantOK   bool
	}{
		{
			name:     "exact match",
			files:    []string{"Accton-AS7326-56X.ini"},
			hwsku:    "Accton-AS7326-56X",
			wantFile: "Accton-AS7326-56X.ini",
			wantOK:   true,
		},
		{
			name:     "lowercase fallback",
			files:    []string{"accton-as7326-56x.ini"},
			hwsku:    "Accton-AS7326-56X",
			wantFile: "accton-as7326-56x.ini",
			wantOK:   true,
		},
		{
			name:     "underscore fallback",
			files:    []string{"Accton_AS7326_56X.ini"},
			hwsku:    "Accton-AS7326-56X",
			wantFile: "Accton_AS7326_56X.ini",
			wantOK:   true,
		},
		{
			name:     "lowercase underscore fallback",
			files:    []string{"accton_as7326_56x.ini"},
			hwsku:    "Accton-AS7326-56X",
			wantFile: "accton_as7326_56x.ini",
			wantOK:   true,
		},
		{
			name:   "not found",
			files:  []string{"other-hwsku.ini"},
			hwsku:  "Accton-AS7326-56X",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range tt.files {
				writeFile(t, dir, name, samplePortConfig)
			}

			path, ok := PortConfigPath(dir, tt.hwsku)
			if ok != tt.wantOK {
				t.Fatalf("PortConfigPath() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && filepath.Base(path) != tt.wantFile {
				t.Errorf("PortConfigPath() = %q, want file %q", path, tt.wantFile)
			}
		})
	}
}

// TestParsePortConfig tests column parsing
func TestParsePortConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "test.ini", samplePortConfig)

	ports, err := ParsePortConfig(path)
	if err != nil {
		t.Fatalf("ParsePortConfig() error = %v", err)
	}

	if len(ports) != 3 {
		t.Fatalf("ParsePortConfig() returned %d ports, want 3", len(ports))
	}

	eth0, ok := ports["Ethernet0"]
	if !ok {
		t.Fatal("ParsePortConfig() missing Ethernet0")
	}
	if eth0.Lanes != "1,2,3,4" {
		t.Errorf("Ethernet0 lanes = %q, want %q", eth0.Lanes, "1,2,3,4")
	}
	if eth0.Alias != "Eth1/1" {
		t.Errorf("Ethernet0 alias = %q, want %q", eth0.Alias, "Eth1/1")
	}
	if eth0.Index != "1" {
		t.Errorf("Ethernet0 index = %q, want %q", eth0.Index, "1")
	}
	if eth0.Speed != "100000" {
		t.Errorf("Ethernet0 speed = %q, want %q", eth0.Speed, "100000")
	}
}

// TestParsePortConfigPartialColumns tests rows with trailing columns
// missing
func TestParsePortConfigPartialColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "partial.ini", "# name lanes\nEthernet0 1,2\n")

	ports, err := ParsePortConfig(path)
	if err != nil {
		t.Fatalf("ParsePortConfig() error = %v", err)
	}

	eth0 := ports["Ethernet0"]
	if eth0.Lanes != "1,2" {
		t.Errorf("lanes = %q, want %q", eth0.Lanes, "1,2")
	}
	if eth0.Alias != "" || eth0.Index != "" || eth0.Speed != "" {
		t.Errorf("optional columns = %+v, want empty", eth0)
	}
}

// TestParsePortConfigMalformed tests rejection of rows without lanes
func TestParsePortConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.ini", "Ethernet0\n")

	if _, err := ParsePortConfig(path); err == nil {
		t.Error("ParsePortConfig() error = nil, want malformed-line error")
	}
}

// TestListHWSKUs tests HWSKU discovery
func TestListHWSKUs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Vendor-B.ini", "")
	writeFile(t, dir, "Vendor-A.ini", "")
	writeFile(t, dir, "notes.txt", "")

	hwskus, err := ListHWSKUs(dir)
	if err != nil {
		t.Fatalf("ListHWSKUs() error = %v", err)
	}

	if len(hwskus) != 2 {
		t.Fatalf("ListHWSKUs() = %v, want 2 entries", hwskus)
	}
	if hwskus[0] != "Vendor-A" || hwskus[1] != "Vendor-B" {
		t.Errorf("ListHWSKUs() = %v, want sorted [Vendor-A Vendor-B]", hwskus)
	}
}
