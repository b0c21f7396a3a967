package outputs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"synthmon/internal/config"
	"synthmon/internal/models"
)

// SNMPOutput provides an SNMP agent for polling recent check results
type SNMPOutput struct {
	config *config.SNMPConfig
	cache  *ResultsCache
	mu     sync.RWMutex
	done   chan struct{}
	wg     sync.WaitGroup

	// Statistics, keyed by monitor name
	stats map[string]*monitorStats

	// SNMP server
	snmpConn   *net.UDPConn
	httpServer *http.Server

	// OID tree for efficient lookups
	oidTree map[string]oidHandler

	// OID branches, derived from the configured enterprise OID
	baseOID         string
	generalStatsOID string
	monitorStatsOID string
	recentChecksOID string

	// Trap destinations
	trapDestinations []*gosnmp.GoSNMP
}

type monitorStats struct {
	TotalChecks      int64
	SuccessfulChecks int64
	TimeoutChecks    int64
	FailedChecks     int64
	LastSuccessTime  time.Time
	LastFailureTime  time.Time
	LastDurationMs   int64
	AvgDurationMs    float64
	MaxDurationMs    int64
	MinDurationMs    int64
}

// oidHandler is a function that returns a value for an OID
type oidHandler func() interface{}

// defaultEnterpriseOID is used when no enterprise OID is configured.
// The 99999 arc is a placeholder; register a real one before exposing
// this agent outside a lab.
const defaultEnterpriseOID = ".1.3.6.1.4.1.99999"

// OID layout under the enterprise OID:
//
// Branch 1: General statistics
//   .1.1.0 = current cache size
//   .1.2.0 = max cache size
//   .1.3.0 = number of monitors seen
//   .1.4.0 = total checks across all monitors
//   .1.5.0 = total successes
//   .1.6.0 = total timeouts
//   .1.7.0 = total failures
//
// Branch 2: Per-monitor statistics (table)
//   .2.<index>.1  = monitor name
//   .2.<index>.2  = total checks
//   .2.<index>.3  = successful checks
//   .2.<index>.4  = timed-out checks
//   .2.<index>.5  = failed checks
//   .2.<index>.6  = last duration (ms)
//   .2.<index>.7  = average duration (ms)
//   .2.<index>.8  = min duration (ms)
//   .2.<index>.9  = max duration (ms)
//   .2.<index>.10 = last success time (Unix timestamp)
//   .2.<index>.11 = last failure time (Unix timestamp)
//
// Branch 3: Recent check results (table, last N checks)
//   .3.<index>.1 = monitor name
//   .3.<index>.2 = completion timestamp (Unix)
//   .3.<index>.3 = success (1/0)
//   .3.<index>.4 = duration (ms)
//   .3.<index>.5 = time to first byte (ms, 0 when not measured)

// Trap types
const (
	trapCheckFailure     = 1
	trapServiceDegraded  = 2
	trapServiceRecovered = 3
)

// NewSNMPOutput creates a new SNMP agent backed by the given cache
func NewSNMPOutput(cfg *config.SNMPConfig, cache *ResultsCache) (*SNMPOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	s := newSNMPAgent(cfg, cache)

	// Parse trap destinations if configured
	if err := s.initializeTrapDestinations(); err != nil {
		log.Printf("Warning: Failed to initialize trap destinations: %v", err)
	}

	// Start SNMP agent server
	if err := s.startSNMPServer(); err != nil {
		return nil, fmt.Errorf("failed to start SNMP server: %w", err)
	}

	// Start HTTP API server (for easier monitoring and debugging)
	if err := s.startHTTPServer(); err != nil {
		log.Printf("Warning: Failed to start HTTP API server: %v", err)
	}

	log.Printf("SNMP agent listening on %s:%d (community: %s)", cfg.ListenAddress, cfg.Port, cfg.Community)
	log.Printf("SNMP HTTP API listening on %s:%d/snmp/data", cfg.ListenAddress, cfg.Port+1)
	log.Printf("Enterprise OID: %s", s.baseOID)

	return s, nil
}

// newSNMPAgent builds the agent state without binding any sockets
func newSNMPAgent(cfg *config.SNMPConfig, cache *ResultsCache) *SNMPOutput {
	if cache == nil {
		cache = NewResultsCache(100)
	}

	base := cfg.EnterpriseOID
	if base == "" {
		base = defaultEnterpriseOID
	}

	s := &SNMPOutput{
		config:          cfg,
		cache:           cache,
		done:            make(chan struct{}),
		stats:           make(map[string]*monitorStats),
		oidTree:         make(map[string]oidHandler),
		baseOID:         base,
		generalStatsOID: base + ".1",
		monitorStatsOID: base + ".2",
		recentChecksOID: base + ".3",
	}

	s.initializeOIDTree()

	return s
}

// initializeOIDTree sets up handlers for the general statistics branch
func (s *SNMPOutput) initializeOIDTree() {
	s.oidTree[s.generalStatsOID+".1.0"] = func() interface{} {
		return s.cache.Count()
	}

	s.oidTree[s.generalStatsOID+".2.0"] = func() interface{} {
		return s.cache.MaxSize()
	}

	s.oidTree[s.generalStatsOID+".3.0"] = func() interface{} {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.stats)
	}

	s.oidTree[s.generalStatsOID+".4.0"] = func() interface{} {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var total int64
		for _, st := range s.stats {
			total += st.TotalChecks
		}
		return total
	}

	s.oidTree[s.generalStatsOID+".5.0"] = func() interface{} {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var total int64
		for _, st := range s.stats {
			total += st.SuccessfulChecks
		}
		return total
	}

	s.oidTree[s.generalStatsOID+".6.0"] = func() interface{} {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var total int64
		for _, st := range s.stats {
			total += st.TimeoutChecks
		}
		return total
	}

	s.oidTree[s.generalStatsOID+".7.0"] = func() interface{} {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var total int64
		for _, st := range s.stats {
			total += st.FailedChecks
		}
		return total
	}
}

// initializeTrapDestinations parses and initializes trap destinations
func (s *SNMPOutput) initializeTrapDestinations() error {
	// Trap destinations would be configured via environment variable
	// Format: host:port,host:port
	// For now, this is a placeholder for future configuration
	s.trapDestinations = make([]*gosnmp.GoSNMP, 0)
	return nil
}

// startSNMPServer starts the SNMP UDP server
func (s *SNMPOutput) startSNMPServer() error {
	addr := fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.snmpConn = conn

	// Start SNMP packet handler
	s.wg.Add(1)
	go s.handleSNMPPackets()

	return nil
}

// handleSNMPPackets processes incoming SNMP requests
func (s *SNMPOutput) handleSNMPPackets() {
	defer s.wg.Done()
	defer s.snmpConn.Close()

	buffer := make([]byte, 65535)

	for {
		select {
		case <-s.done:
			return
		default:
			// Set read deadline to allow checking done channel
			s.snmpConn.SetReadDeadline(time.Now().Add(1 * time.Second))

			n, remoteAddr, err := s.snmpConn.ReadFromUDP(buffer)
			if err != nil {
				// Timeout is expected, continue
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				log.Printf("SNMP read error: %v", err)
				continue
			}

			// Process the SNMP packet
			go s.processSNMPPacket(buffer[:n], remoteAddr)
		}
	}
}

// processSNMPPacket handles a single SNMP request
func (s *SNMPOutput) processSNMPPacket(data []byte, remoteAddr *net.UDPAddr) {
	// Decode SNMP packet
	packet, err := gosnmp.Default.SnmpDecodePacket(data)
	if err != nil {
		log.Printf("Failed to unmarshal SNMP packet: %v", err)
		return
	}

	// Verify community string
	if packet.Community != s.config.Community {
		log.Printf("SNMP request with invalid community from %s", remoteAddr)
		return
	}

	// Handle different PDU types
	var response *gosnmp.SnmpPacket
	switch packet.PDUType {
	case gosnmp.GetRequest:
		response = s.handleGetRequest(packet)
	case gosnmp.GetNextRequest:
		response = s.handleGetNextRequest(packet)
	case gosnmp.GetBulkRequest:
		response = s.handleGetBulkRequest(packet)
	default:
		log.Printf("Unsupported SNMP PDU type: %v", packet.PDUType)
		return
	}

	if response == nil {
		return
	}

	// Marshal response
	responseData, err := response.MarshalMsg()
	if err != nil {
		log.Printf("Failed to marshal SNMP response: %v", err)
		return
	}

	// Send response
	_, err = s.snmpConn.WriteToUDP(responseData, remoteAddr)
	if err != nil {
		log.Printf("Failed to send SNMP response: %v", err)
	}
}

// handleGetRequest processes SNMP GET requests
func (s *SNMPOutput) handleGetRequest(packet *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	response := &gosnmp.SnmpPacket{
		Version:   packet.Version,
		Community: packet.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: packet.RequestID,
		Variables: make([]gosnmp.SnmpPDU, 0, len(packet.Variables)),
	}

	for _, reqVar := range packet.Variables {
		pdu := s.getOIDValue(reqVar.Name)
		response.Variables = append(response.Variables, pdu)
	}

	return response
}

// handleGetNextRequest processes SNMP GETNEXT requests
func (s *SNMPOutput) handleGetNextRequest(packet *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	response := &gosnmp.SnmpPacket{
		Version:   packet.Version,
		Community: packet.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: packet.RequestID,
		Variables: make([]gosnmp.SnmpPDU, 0, len(packet.Variables)),
	}

	for _, reqVar := range packet.Variables {
		pdu := s.getNextOID(reqVar.Name)
		response.Variables = append(response.Variables, pdu)
	}

	return response
}

// handleGetBulkRequest processes SNMP GETBULK requests
func (s *SNMPOutput) handleGetBulkRequest(packet *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	response := &gosnmp.SnmpPacket{
		Version:   packet.Version,
		Community: packet.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: packet.RequestID,
		Variables: make([]gosnmp.SnmpPDU, 0),
	}

	// GETBULK MaxRepetitions
	maxReps := packet.MaxRepetitions
	if maxReps == 0 {
		maxReps = 10 // Default
	}

	for _, reqVar := range packet.Variables {
		currentOID := reqVar.Name
		for i := uint32(0); i < maxReps; i++ {
			pdu := s.getNextOID(currentOID)
			if pdu.Type == gosnmp.EndOfMibView {
				break
			}
			response.Variables = append(response.Variables, pdu)
			currentOID = pdu.Name
		}
	}

	return response
}

// getOIDValue retrieves the value for a specific OID
func (s *SNMPOutput) getOIDValue(oid string) gosnmp.SnmpPDU {
	// Check if OID is in our tree
	if handler, exists := s.oidTree[oid]; exists {
		value := handler()
		return s.createSNMPPDU(oid, value)
	}

	// Check if it's a table OID (monitor stats or recent checks)
	if strings.HasPrefix(oid, s.monitorStatsOID) {
		return s.getMonitorStatsOID(oid)
	}

	if strings.HasPrefix(oid, s.recentChecksOID) {
		return s.getRecentCheckOID(oid)
	}

	// OID not found
	return gosnmp.SnmpPDU{
		Name:  oid,
		Type:  gosnmp.NoSuchInstance,
		Value: nil,
	}
}

// getNextOID finds the next OID in the tree
func (s *SNMPOutput) getNextOID(oid string) gosnmp.SnmpPDU {
	// Get all OIDs and sort them
	allOIDs := s.getAllOIDs()

	// Find the next OID
	for _, nextOID := range allOIDs {
		if oidCompare(oid, nextOID) < 0 {
			return s.getOIDValue(nextOID)
		}
	}

	// End of MIB
	return gosnmp.SnmpPDU{
		Name:  oid,
		Type:  gosnmp.EndOfMibView,
		Value: nil,
	}
}

// getAllOIDs returns all available OIDs in sorted order
func (s *SNMPOutput) getAllOIDs() []string {
	s.mu.RLock()
	monitorCount := len(s.stats)
	s.mu.RUnlock()

	oids := make([]string, 0)

	// Add static OIDs
	for oid := range s.oidTree {
		oids = append(oids, oid)
	}

	// Add monitor stats OIDs
	for index := 1; index <= monitorCount; index++ {
		for metric := 1; metric <= 11; metric++ {
			oid := fmt.Sprintf("%s.%d.%d", s.monitorStatsOID, index, metric)
			oids = append(oids, oid)
		}
	}

	// Add recent check OIDs
	cached := s.cache.Count()
	for i := 0; i < cached; i++ {
		for metric := 1; metric <= 5; metric++ {
			oid := fmt.Sprintf("%s.%d.%d", s.recentChecksOID, i+1, metric)
			oids = append(oids, oid)
		}
	}

	// Sort OIDs
	sortOIDs(oids)

	return oids
}

// getMonitorStatsOID retrieves a monitor statistics OID value.
// Table indexes follow the sorted monitor names so walks are stable.
func (s *SNMPOutput) getMonitorStatsOID(oid string) gosnmp.SnmpPDU {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Parse OID: <enterprise>.2.<index>.<metric>
	parts := strings.Split(strings.TrimPrefix(oid, s.monitorStatsOID+"."), ".")
	if len(parts) != 2 {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	metric, err := strconv.Atoi(parts[1])
	if err != nil {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	names := make([]string, 0, len(s.stats))
	for name := range s.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	if index < 1 || index > len(names) {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	name := names[index-1]
	st := s.stats[name]

	// Return metric value
	switch metric {
	case 1: // monitor name
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: name}
	case 2: // total checks
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.TotalChecks)}
	case 3: // successful checks
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.SuccessfulChecks)}
	case 4: // timed-out checks
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.TimeoutChecks)}
	case 5: // failed checks
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.FailedChecks)}
	case 6: // last duration
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint(st.LastDurationMs)}
	case 7: // average duration
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint(st.AvgDurationMs)}
	case 8: // min duration
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint(st.MinDurationMs)}
	case 9: // max duration
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint(st.MaxDurationMs)}
	case 10: // last success time
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.LastSuccessTime.Unix())}
	case 11: // last failure time
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(st.LastFailureTime.Unix())}
	default:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}
}

// getRecentCheckOID retrieves a recent check result OID value
func (s *SNMPOutput) getRecentCheckOID(oid string) gosnmp.SnmpPDU {
	// Parse OID: <enterprise>.3.<index>.<metric>
	parts := strings.Split(strings.TrimPrefix(oid, s.recentChecksOID+"."), ".")
	if len(parts) != 2 {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	metric, err := strconv.Atoi(parts[1])
	if err != nil {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}

	event := s.cache.At(index - 1)
	if event == nil {
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}
	res := event.Result

	// Return metric value
	switch metric {
	case 1: // monitor name
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: monitorLabel(event)}
	case 2: // completion timestamp
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: uint64(res.CompletedAt.Unix())}
	case 3: // success
		success := 0
		if res.Status == models.StatusSuccess {
			success = 1
		}
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Integer, Value: success}
	case 4: // duration
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: uint(res.Duration().Milliseconds())}
	case 5: // time to first byte
		var ttfb uint
		if res.TTFBMs != nil {
			ttfb = uint(*res.TTFBMs)
		}
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: ttfb}
	default:
		return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchInstance, Value: nil}
	}
}

// monitorLabel names a monitor for SNMP values, falling back to the URL
func monitorLabel(event *models.CheckEvent) string {
	if event.Monitor.Name != "" {
		return event.Monitor.Name
	}
	return event.Monitor.URL
}

// oidCompare compares two OIDs numerically, arc by arc
func oidCompare(oid1, oid2 string) int {
	// Remove leading dots
	oid1 = strings.TrimPrefix(oid1, ".")
	oid2 = strings.TrimPrefix(oid2, ".")

	parts1 := strings.Split(oid1, ".")
	parts2 := strings.Split(oid2, ".")

	for i := 0; i < len(parts1) && i < len(parts2); i++ {
		n1, _ := strconv.Atoi(parts1[i])
		n2, _ := strconv.Atoi(parts2[i])

		if n1 < n2 {
			return -1
		} else if n1 > n2 {
			return 1
		}
	}

	if len(parts1) < len(parts2) {
		return -1
	} else if len(parts1) > len(parts2) {
		return 1
	}

	return 0
}

// sortOIDs sorts OIDs in MIB walk order
func sortOIDs(oids []string) {
	sort.Slice(oids, func(i, j int) bool {
		return oidCompare(oids[i], oids[j]) < 0
	})
}

// startHTTPServer starts an HTTP API server for easier SNMP data access
func (s *SNMPOutput) startHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snmp/data", s.handleSNMPDataRequest)
	mux.HandleFunc("/snmp/mib", s.handleMIBRequest)
	mux.HandleFunc("/snmp/oids", s.handleOIDListRequest)

	addr := fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.Port+1)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("SNMP HTTP server error: %v", err)
		}
	}()

	return nil
}

// handleSNMPDataRequest handles HTTP requests for SNMP data in JSON format
func (s *SNMPOutput) handleSNMPDataRequest(w http.ResponseWriter, r *http.Request) {
	data := s.GetSNMPData()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding SNMP data: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleMIBRequest handles HTTP requests for MIB data
func (s *SNMPOutput) handleMIBRequest(w http.ResponseWriter, r *http.Request) {
	mib := s.ExportMIBData()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, mib)
}

// handleOIDListRequest handles HTTP requests for the list of available OIDs
func (s *SNMPOutput) handleOIDListRequest(w http.ResponseWriter, r *http.Request) {
	oids := s.getAllOIDs()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(oids); err != nil {
		log.Printf("Error encoding OID list: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Write caches the check event for SNMP queries and updates statistics
func (s *SNMPOutput) Write(event *models.CheckEvent) error {
	if s == nil {
		return nil
	}

	s.cache.Add(event)

	res := event.Result
	name := monitorLabel(event)
	durationMs := res.Duration().Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stats[name]; !exists {
		s.stats[name] = &monitorStats{
			MinDurationMs: durationMs,
			MaxDurationMs: durationMs,
		}
	}

	st := s.stats[name]
	st.TotalChecks++
	st.LastDurationMs = durationMs

	switch res.Status {
	case models.StatusSuccess:
		st.SuccessfulChecks++
		st.LastSuccessTime = res.CompletedAt
	case models.StatusTimeout:
		st.TimeoutChecks++
		st.LastFailureTime = res.CompletedAt

		// Send trap for check failure (async, don't block)
		go s.sendCheckFailureTrap(name, res.ErrorMessage)
	default:
		st.FailedChecks++
		st.LastFailureTime = res.CompletedAt

		go s.sendCheckFailureTrap(name, res.ErrorMessage)
	}

	// Update min/max
	if durationMs < st.MinDurationMs {
		st.MinDurationMs = durationMs
	}
	if durationMs > st.MaxDurationMs {
		st.MaxDurationMs = durationMs
	}

	// Calculate running average
	st.AvgDurationMs = (st.AvgDurationMs*float64(st.TotalChecks-1) + float64(durationMs)) / float64(st.TotalChecks)

	// Check for service degradation (high failure rate)
	if st.TotalChecks > 10 {
		failureRate := float64(st.TimeoutChecks+st.FailedChecks) / float64(st.TotalChecks)
		if failureRate > 0.5 {
			go s.sendServiceDegradedTrap(name, failureRate)
		}
	}

	return nil
}

// GetCachedEvents returns the cached events (for external SNMP polling)
func (s *SNMPOutput) GetCachedEvents() []*models.CheckEvent {
	return s.cache.GetLast(s.cache.Count())
}

// GetMonitorStats returns statistics for a specific monitor
func (s *SNMPOutput) GetMonitorStats(name string) *monitorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, exists := s.stats[name]; exists {
		// Return a copy
		statsCopy := *st
		return &statsCopy
	}
	return nil
}

// GetAllStats returns statistics for all monitors
func (s *SNMPOutput) GetAllStats() map[string]*monitorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy
	statsCopy := make(map[string]*monitorStats)
	for name, st := range s.stats {
		stats := *st
		statsCopy[name] = &stats
	}
	return statsCopy
}

// GetSNMPData returns SNMP-compatible data structure
// This can be queried by external SNMP monitoring systems
func (s *SNMPOutput) GetSNMPData() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string]interface{})

	// Overall metrics
	data["cache_size"] = s.cache.Count()
	data["cache_max_size"] = s.cache.MaxSize()
	data["monitored_count"] = len(s.stats)

	// Per-monitor metrics
	monitors := make(map[string]interface{})
	for name, st := range s.stats {
		monitors[name] = map[string]interface{}{
			"total_checks":      st.TotalChecks,
			"successful_checks": st.SuccessfulChecks,
			"timeout_checks":    st.TimeoutChecks,
			"failed_checks":     st.FailedChecks,
			"last_success_time": st.LastSuccessTime.Unix(),
			"last_failure_time": st.LastFailureTime.Unix(),
			"last_duration_ms":  st.LastDurationMs,
			"avg_duration_ms":   st.AvgDurationMs,
			"max_duration_ms":   st.MaxDurationMs,
			"min_duration_ms":   st.MinDurationMs,
		}
	}
	data["monitors"] = monitors

	return data
}

// SendTrap sends an SNMP trap for critical events
func (s *SNMPOutput) SendTrap(trapType string, message string) error {
	if s == nil || s.config == nil || len(s.trapDestinations) == 0 {
		return nil
	}

	// Build trap PDU
	pdu := gosnmp.SnmpPDU{
		Name:  s.baseOID + ".0.1",
		Type:  gosnmp.OctetString,
		Value: message,
	}

	// Send to all configured trap destinations
	for _, dest := range s.trapDestinations {
		trap := gosnmp.SnmpTrap{
			Variables: []gosnmp.SnmpPDU{pdu},
		}

		_, err := dest.SendTrap(trap)
		if err != nil {
			log.Printf("Failed to send SNMP trap to %s: %v", dest.Target, err)
		} else {
			log.Printf("SNMP trap sent to %s: %s", dest.Target, message)
		}
	}

	return nil
}

// sendCheckFailureTrap sends a trap when a check fails
func (s *SNMPOutput) sendCheckFailureTrap(name, errorMsg string) {
	if len(s.trapDestinations) == 0 {
		return
	}

	message := fmt.Sprintf("Check failure for %s: %s", name, errorMsg)
	s.SendTrap("check_failure", message)
}

// sendServiceDegradedTrap sends a trap when a monitor is degraded (high failure rate)
func (s *SNMPOutput) sendServiceDegradedTrap(name string, failureRate float64) {
	if len(s.trapDestinations) == 0 {
		return
	}

	message := fmt.Sprintf("Service degraded for %s: %.1f%% failure rate", name, failureRate*100)
	s.SendTrap("service_degraded", message)
}

// ExportMIBData exports the current state in a MIB-compatible format
// This is useful for documentation and external SNMP managers
func (s *SNMPOutput) ExportMIBData() string {
	data := s.GetSNMPData()

	mib := fmt.Sprintf(`
-- Synthetic Monitor MIB (Simplified)
-- Enterprise OID: %s
--
-- This is a simplified representation. For full SNMP support,
-- use a proper SNMP agent with a complete MIB definition.

Cache Size: %v
Max Cache Size: %v
Monitored URLs: %v

Per-Monitor Statistics:
`, s.baseOID, data["cache_size"], data["cache_max_size"], data["monitored_count"])

	if monitors, ok := data["monitors"].(map[string]interface{}); ok {
		for name, stats := range monitors {
			if statsMap, ok := stats.(map[string]interface{}); ok {
				mib += fmt.Sprintf("\nMonitor: %s\n", name)
				mib += fmt.Sprintf("  Total Checks: %v\n", statsMap["total_checks"])
				mib += fmt.Sprintf("  Successful: %v\n", statsMap["successful_checks"])
				mib += fmt.Sprintf("  Timeouts: %v\n", statsMap["timeout_checks"])
				mib += fmt.Sprintf("  Failed: %v\n", statsMap["failed_checks"])
				mib += fmt.Sprintf("  Avg Duration: %.2f ms\n", statsMap["avg_duration_ms"])
			}
		}
	}

	return mib
}

// Name returns the output module name
func (s *SNMPOutput) Name() string {
	return "snmp"
}

// Close shuts down the SNMP agent
func (s *SNMPOutput) Close() error {
	if s == nil {
		return nil
	}

	log.Println("Shutting down SNMP agent...")

	// Signal shutdown to SNMP packet handler
	close(s.done)

	// Shutdown HTTP server
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down SNMP HTTP server: %v", err)
		}
	}

	// Wait for SNMP packet handler to finish
	s.wg.Wait()

	// Close trap connections
	for _, dest := range s.trapDestinations {
		if dest.Conn != nil {
			dest.Conn.Close()
		}
	}

	log.Printf("SNMP agent stopped. Final statistics:")
	s.mu.RLock()
	for name, stats := range s.stats {
		log.Printf("  %s: %d checks (%d success, %d timeout, %d failed), avg: %.2f ms",
			name, stats.TotalChecks, stats.SuccessfulChecks, stats.TimeoutChecks, stats.FailedChecks, stats.AvgDurationMs)
	}
	s.mu.RUnlock()

	return nil
}

// createSNMPPDU maps a handler value onto an SNMP PDU
func (s *SNMPOutput) createSNMPPDU(oid string, value interface{}) gosnmp.SnmpPDU {
	var pduType gosnmp.Asn1BER

	switch value.(type) {
	case int, int64:
		pduType = gosnmp.Integer
	case string:
		pduType = gosnmp.OctetString
	default:
		pduType = gosnmp.OctetString
	}

	return gosnmp.SnmpPDU{
		Name:  oid,
		Type:  pduType,
		Value: value,
	}
}
