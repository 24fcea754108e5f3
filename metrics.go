package rvhv

import (
	"sync/atomic"
	"time"
)

// Performance metrics for monitoring hypervisor operations
var (
	// Operation counters
	guestEntries     uint64
	pageFaultsServed uint64
	illegalsSkipped  uint64
	sbiCalls         uint64
	resetCount       uint64
	fatalTraps       uint64
	mapOperations    uint64
	loadOperations   uint64

	// Timing metrics (nanoseconds)
	totalEntryTime uint64
	totalRunTime   uint64

	// Run completions
	runOperations uint64
)

// Metrics provides access to performance metrics
type Metrics struct {
	GuestEntries     uint64 `json:"guest_entries"`
	PageFaultsServed uint64 `json:"page_faults_served"`
	IllegalsSkipped  uint64 `json:"illegals_skipped"`
	SBICalls         uint64 `json:"sbi_calls"`
	Resets           uint64 `json:"resets"`
	FatalTraps       uint64 `json:"fatal_traps"`
	MapOperations    uint64 `json:"map_operations"`
	LoadOperations   uint64 `json:"load_operations"`
	RunOperations    uint64 `json:"run_operations"`
	AvgEntryTimeNs   uint64 `json:"avg_entry_time_ns"`
	AvgRunTimeNs     uint64 `json:"avg_run_time_ns"`
}

// GetMetrics returns current performance metrics
func GetMetrics() Metrics {
	entries := atomic.LoadUint64(&guestEntries)
	runOps := atomic.LoadUint64(&runOperations)

	var avgEntry, avgRun uint64
	if entries > 0 {
		avgEntry = atomic.LoadUint64(&totalEntryTime) / entries
	}
	if runOps > 0 {
		avgRun = atomic.LoadUint64(&totalRunTime) / runOps
	}

	return Metrics{
		GuestEntries:     entries,
		PageFaultsServed: atomic.LoadUint64(&pageFaultsServed),
		IllegalsSkipped:  atomic.LoadUint64(&illegalsSkipped),
		SBICalls:         atomic.LoadUint64(&sbiCalls),
		Resets:           atomic.LoadUint64(&resetCount),
		FatalTraps:       atomic.LoadUint64(&fatalTraps),
		MapOperations:    atomic.LoadUint64(&mapOperations),
		LoadOperations:   atomic.LoadUint64(&loadOperations),
		RunOperations:    runOps,
		AvgEntryTimeNs:   avgEntry,
		AvgRunTimeNs:     avgRun,
	}
}

// ResetMetrics clears all performance metrics
func ResetMetrics() {
	atomic.StoreUint64(&guestEntries, 0)
	atomic.StoreUint64(&pageFaultsServed, 0)
	atomic.StoreUint64(&illegalsSkipped, 0)
	atomic.StoreUint64(&sbiCalls, 0)
	atomic.StoreUint64(&resetCount, 0)
	atomic.StoreUint64(&fatalTraps, 0)
	atomic.StoreUint64(&mapOperations, 0)
	atomic.StoreUint64(&loadOperations, 0)
	atomic.StoreUint64(&runOperations, 0)
	atomic.StoreUint64(&totalEntryTime, 0)
	atomic.StoreUint64(&totalRunTime, 0)
}

// Internal metric recording functions
func recordEntry(duration time.Duration) {
	atomic.AddUint64(&guestEntries, 1)
	atomic.AddUint64(&totalEntryTime, uint64(duration.Nanoseconds()))
}

func recordPageFault() {
	atomic.AddUint64(&pageFaultsServed, 1)
}

func recordIllegalSkip() {
	atomic.AddUint64(&illegalsSkipped, 1)
}

func recordSBICall() {
	atomic.AddUint64(&sbiCalls, 1)
}

func recordReset() {
	atomic.AddUint64(&resetCount, 1)
}

func recordFatalTrap() {
	atomic.AddUint64(&fatalTraps, 1)
}

func recordMapOperation() {
	atomic.AddUint64(&mapOperations, 1)
}

func recordLoadOperation() {
	atomic.AddUint64(&loadOperations, 1)
}

func recordRun(duration time.Duration) {
	atomic.AddUint64(&runOperations, 1)
	atomic.AddUint64(&totalRunTime, uint64(duration.Nanoseconds()))
}
