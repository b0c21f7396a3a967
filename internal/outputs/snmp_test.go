package outputs

import (
	"strings"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"synthmon/internal/config"
	"synthmon/internal/models"
)

func TestOIDCompare(t *testing.T) {
	tests := []struct {
		name     string
		oid1     string
		oid2     string
		expected int
	}{
		{
			name:     "Equal OIDs",
			oid1:     ".1.3.6.1.4.1.99999.1.1.0",
			oid2:     ".1.3.6.1.4.1.99999.1.1.0",
			expected: 0,
		},
		{
			name:     "First OID less than second",
			oid1:     ".1.3.6.1.4.1.99999.1.1.0",
			oid2:     ".1.3.6.1.4.1.99999.1.2.0",
			expected: -1,
		},
		{
			name:     "First OID greater than second",
			oid1:     ".1.3.6.1.4.1.99999.2.1.0",
			oid2:     ".1.3.6.1.4.1.99999.1.1.0",
			expected: 1,
		},
		{
			name:     "Shorter OID first",
			oid1:     ".1.3.6.1.4.1.99999.1",
			oid2:     ".1.3.6.1.4.1.99999.1.1",
			expected: -1,
		},
		{
			name:     "Longer OID first",
			oid1:     ".1.3.6.1.4.1.99999.1.1.0",
			oid2:     ".1.3.6.1.4.1.99999.1.1",
			expected: 1,
		},
		{
			name:     "OIDs without leading dot",
			oid1:     "1.3.6.1.4.1.99999.1.1.0",
			oid2:     "1.3.6.1.4.1.99999.1.2.0",
			expected: -1,
		},
		{
			name:     "Numeric not lexicographic",
			oid1:     ".1.3.6.1.4.1.99999.3.2.1",
			oid2:     ".1.3.6.1.4.1.99999.3.10.1",
			expected: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := oidCompare(tt.oid1, tt.oid2)
			if result != tt.expected {
				t.Errorf("oidCompare(%s, %s) = %d, expected %d",
					tt.oid1, tt.oid2, result, tt.expected)
			}
		})
	}
}

func TestSortOIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name: "Already sorted",
			input: []string{
				".1.3.6.1.4.1.99999.1.1.0",
				".1.3.6.1.4.1.99999.1.2.0",
				".1.3.6.1.4.1.99999.1.3.0",
			},
			expected: []string{
				".1.3.6.1.4.1.99999.1.1.0",
				".1.3.6.1.4.1.99999.1.2.0",
				".1.3.6.1.4.1.99999.1.3.0",
			},
		},
		{
			name: "Reverse order",
			input: []string{
				".1.3.6.1.4.1.99999.1.3.0",
				".1.3.6.1.4.1.99999.1.2.0",
				".1.3.6.1.4.1.99999.1.1.0",
			},
			expected: []string{
				".1.3.6.1.4.1.99999.1.1.0",
				".1.3.6.1.4.1.99999.1.2.0",
				".1.3.6.1.4.1.99999.1.3.0",
			},
		},
		{
			name: "Mixed lengths",
			input: []string{
				".1.3.6.1.4.1.99999.1.1.0.1",
				".1.3.6.1.4.1.99999.1.1.0",
				".1.3.6.1.4.1.99999.1.1",
			},
			expected: []string{
				".1.3.6.1.4.1.99999.1.1",
				".1.3.6.1.4.1.99999.1.1.0",
				".1.3.6.1.4.1.99999.1.1.0.1",
			},
		},
		{
			name: "Two-digit arcs after single-digit",
			input: []string{
				".1.3.6.1.4.1.99999.3.10.1",
				".1.3.6.1.4.1.99999.3.2.1",
			},
			expected: []string{
				".1.3.6.1.4.1.99999.3.2.1",
				".1.3.6.1.4.1.99999.3.10.1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Make a copy since sortOIDs modifies in place
			oids := make([]string, len(tt.input))
			copy(oids, tt.input)

			sortOIDs(oids)

			if len(oids) != len(tt.expected) {
				t.Fatalf("Expected %d OIDs, got %d", len(tt.expected), len(oids))
			}

			for i := range oids {
				if oids[i] != tt.expected[i] {
					t.Errorf("At index %d: expected %s, got %s",
						i, tt.expected[i], oids[i])
				}
			}
		})
	}
}

// snmpTestConfig builds a config that never binds a socket in tests
func snmpTestConfig() *config.SNMPConfig {
	return &config.SNMPConfig{
		Enabled:       false,
		Port:          1161,
		Community:     "test",
		ListenAddress: "127.0.0.1",
		EnterpriseOID: ".1.3.6.1.4.1.99999",
	}
}

// snmpTestEvent builds a check event with the given outcome and duration
func snmpTestEvent(monitor string, status models.Status, durationMs int64) *models.CheckEvent {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.CheckEvent{
		Monitor: models.Monitor{
			ID:   1,
			Name: monitor,
			URL:  "https://" + monitor + ".com",
		},
		Result: &models.ExecutionResult{
			CheckID:     "check-" + monitor,
			MonitorID:   1,
			Status:      status,
			StartedAt:   started,
			CompletedAt: started.Add(time.Duration(durationMs) * time.Millisecond),
		},
	}
}

func TestSNMPOutputWrite(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	// Write a successful check
	if err := s.Write(snmpTestEvent("example", models.StatusSuccess, 1500)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Verify cache
	if s.cache.Count() != 1 {
		t.Errorf("Expected cache size 1, got %d", s.cache.Count())
	}

	// Verify stats
	stats := s.GetMonitorStats("example")
	if stats == nil {
		t.Fatal("Expected stats for 'example' monitor, got nil")
	}

	if stats.TotalChecks != 1 {
		t.Errorf("Expected TotalChecks=1, got %d", stats.TotalChecks)
	}

	if stats.SuccessfulChecks != 1 {
		t.Errorf("Expected SuccessfulChecks=1, got %d", stats.SuccessfulChecks)
	}

	if stats.FailedChecks != 0 {
		t.Errorf("Expected FailedChecks=0, got %d", stats.FailedChecks)
	}

	if stats.LastDurationMs != 1500 {
		t.Errorf("Expected LastDurationMs=1500, got %d", stats.LastDurationMs)
	}

	// Write a timed-out check
	timeoutEvent := snmpTestEvent("example", models.StatusTimeout, 30000)
	timeoutEvent.Result.ErrorMessage = "page load timeout after 30s: context deadline exceeded"
	if err := s.Write(timeoutEvent); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Verify updated stats
	stats = s.GetMonitorStats("example")
	if stats.TotalChecks != 2 {
		t.Errorf("Expected TotalChecks=2, got %d", stats.TotalChecks)
	}

	if stats.SuccessfulChecks != 1 {
		t.Errorf("Expected SuccessfulChecks=1, got %d", stats.SuccessfulChecks)
	}

	if stats.TimeoutChecks != 1 {
		t.Errorf("Expected TimeoutChecks=1, got %d", stats.TimeoutChecks)
	}

	if stats.FailedChecks != 0 {
		t.Errorf("Expected FailedChecks=0, got %d", stats.FailedChecks)
	}

	if stats.MinDurationMs != 1500 {
		t.Errorf("Expected MinDurationMs=1500, got %d", stats.MinDurationMs)
	}

	if stats.MaxDurationMs != 30000 {
		t.Errorf("Expected MaxDurationMs=30000, got %d", stats.MaxDurationMs)
	}
}

func TestSNMPOutputCircularBuffer(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(3))

	// Write 5 checks (more than cache size)
	for i := 0; i < 5; i++ {
		event := snmpTestEvent("example", models.StatusSuccess, int64(1000+i*100))
		if err := s.Write(event); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// Cache should only have last 3 checks
	if s.cache.Count() != 3 {
		t.Errorf("Expected cache size 3, got %d", s.cache.Count())
	}

	// Verify oldest checks were removed (durations 1200, 1300, 1400 remain)
	if got := s.cache.At(0).Result.Duration().Milliseconds(); got != 1200 {
		t.Errorf("Expected first cached duration 1200, got %d", got)
	}

	if got := s.cache.At(2).Result.Duration().Milliseconds(); got != 1400 {
		t.Errorf("Expected last cached duration 1400, got %d", got)
	}

	// Stats should still count all 5 checks
	stats := s.GetMonitorStats("example")
	if stats.TotalChecks != 5 {
		t.Errorf("Expected TotalChecks=5, got %d", stats.TotalChecks)
	}
}

func TestSNMPOutputGetSNMPData(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	event := snmpTestEvent("example", models.StatusSuccess, 1234)
	s.Write(event)

	data := s.GetSNMPData()

	// Verify structure
	if data["cache_size"].(int) != 1 {
		t.Errorf("Expected cache_size=1, got %v", data["cache_size"])
	}

	if data["cache_max_size"].(int) != 100 {
		t.Errorf("Expected cache_max_size=100, got %v", data["cache_max_size"])
	}

	if data["monitored_count"].(int) != 1 {
		t.Errorf("Expected monitored_count=1, got %v", data["monitored_count"])
	}

	// Verify per-monitor data
	monitors, ok := data["monitors"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected monitors to be a map")
	}

	example, ok := monitors["example"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected example monitor data")
	}

	if example["total_checks"].(int64) != 1 {
		t.Errorf("Expected total_checks=1, got %v", example["total_checks"])
	}

	if example["successful_checks"].(int64) != 1 {
		t.Errorf("Expected successful_checks=1, got %v", example["successful_checks"])
	}

	if example["last_duration_ms"].(int64) != 1234 {
		t.Errorf("Expected last_duration_ms=1234, got %v", example["last_duration_ms"])
	}
}

func TestSNMPOutputGetAllStats(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	// Add results for multiple monitors
	names := []string{"docs", "shop", "status"}
	for _, name := range names {
		s.Write(snmpTestEvent(name, models.StatusSuccess, 1000))
	}

	allStats := s.GetAllStats()

	if len(allStats) != 3 {
		t.Errorf("Expected 3 monitors in stats, got %d", len(allStats))
	}

	for _, name := range names {
		stats, ok := allStats[name]
		if !ok {
			t.Errorf("Expected stats for monitor %s, but not found", name)
			continue
		}

		if stats.TotalChecks != 1 {
			t.Errorf("Monitor %s: expected TotalChecks=1, got %d",
				name, stats.TotalChecks)
		}
	}
}

func TestSNMPOutputScalarOIDs(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	s.Write(snmpTestEvent("example", models.StatusSuccess, 1000))
	failEvent := snmpTestEvent("example", models.StatusError, 500)
	failEvent.Result.ErrorMessage = "browser: chrome failed to start"
	s.Write(failEvent)

	tests := []struct {
		name     string
		oid      string
		expected interface{}
	}{
		{"Cache size", ".1.3.6.1.4.1.99999.1.1.0", 2},
		{"Max cache size", ".1.3.6.1.4.1.99999.1.2.0", 100},
		{"Monitor count", ".1.3.6.1.4.1.99999.1.3.0", 1},
		{"Total checks", ".1.3.6.1.4.1.99999.1.4.0", int64(2)},
		{"Total successes", ".1.3.6.1.4.1.99999.1.5.0", int64(1)},
		{"Total timeouts", ".1.3.6.1.4.1.99999.1.6.0", int64(0)},
		{"Total failures", ".1.3.6.1.4.1.99999.1.7.0", int64(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdu := s.getOIDValue(tt.oid)
			if pdu.Type == gosnmp.NoSuchInstance {
				t.Fatalf("Expected value for %s, got NoSuchInstance", tt.oid)
			}
			if pdu.Value != tt.expected {
				t.Errorf("OID %s: expected %v, got %v", tt.oid, tt.expected, pdu.Value)
			}
		})
	}
}

func TestSNMPOutputRecentCheckTable(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	ttfb := 123.4
	event := snmpTestEvent("example", models.StatusSuccess, 1500)
	event.Result.TTFBMs = &ttfb
	s.Write(event)

	noTTFB := snmpTestEvent("example", models.StatusTimeout, 30000)
	s.Write(noTTFB)

	// First row: successful check with TTFB
	pdu := s.getOIDValue(".1.3.6.1.4.1.99999.3.1.1")
	if pdu.Value != "example" {
		t.Errorf("Expected monitor name 'example', got %v", pdu.Value)
	}

	pdu = s.getOIDValue(".1.3.6.1.4.1.99999.3.1.3")
	if pdu.Value != 1 {
		t.Errorf("Expected success flag 1, got %v", pdu.Value)
	}

	pdu = s.getOIDValue(".1.3.6.1.4.1.99999.3.1.5")
	if pdu.Value != uint(123) {
		t.Errorf("Expected TTFB 123, got %v", pdu.Value)
	}

	// Second row: timeout with no TTFB measured
	pdu = s.getOIDValue(".1.3.6.1.4.1.99999.3.2.3")
	if pdu.Value != 0 {
		t.Errorf("Expected success flag 0, got %v", pdu.Value)
	}

	pdu = s.getOIDValue(".1.3.6.1.4.1.99999.3.2.5")
	if pdu.Value != uint(0) {
		t.Errorf("Expected TTFB 0, got %v", pdu.Value)
	}

	// Out-of-range row
	pdu = s.getOIDValue(".1.3.6.1.4.1.99999.3.9.1")
	if pdu.Type != gosnmp.NoSuchInstance {
		t.Errorf("Expected NoSuchInstance for missing row, got %v", pdu.Type)
	}
}

// TestSNMPOutputWalk walks the whole tree with GETNEXT semantics and
// verifies ordering and termination.
func TestSNMPOutputWalk(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	s.Write(snmpTestEvent("example", models.StatusSuccess, 1000))

	var walked []string
	current := ".1.3.6.1.4.1.99999"
	for i := 0; i < 100; i++ {
		pdu := s.getNextOID(current)
		if pdu.Type == gosnmp.EndOfMibView {
			break
		}
		walked = append(walked, pdu.Name)
		current = pdu.Name
	}

	// 7 general stats + 11 monitor stats + 5 recent check columns
	if len(walked) != 23 {
		t.Errorf("Expected 23 OIDs in walk, got %d", len(walked))
	}

	for i := 1; i < len(walked); i++ {
		if oidCompare(walked[i-1], walked[i]) >= 0 {
			t.Errorf("Walk not strictly increasing at %d: %s then %s",
				i, walked[i-1], walked[i])
		}
	}
}

func TestSNMPOutputExportMIBData(t *testing.T) {
	s := newSNMPAgent(snmpTestConfig(), NewResultsCache(100))

	s.Write(snmpTestEvent("example", models.StatusSuccess, 1234))

	mib := s.ExportMIBData()

	if mib == "" {
		t.Error("Expected non-empty MIB data")
	}

	// Check for key components
	expectedStrings := []string{
		"Synthetic Monitor MIB",
		".1.3.6.1.4.1.99999",
		"example",
		"Total Checks: 1",
		"Successful: 1",
		"Failed: 0",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(mib, expected) {
			t.Errorf("Expected MIB to contain '%s'", expected)
		}
	}
}
