package rvhv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMetrics(t *testing.T) {
	// Reset metrics for clean test
	ResetMetrics()

	metrics := GetMetrics()
	if metrics.GuestEntries != 0 {
		t.Errorf("Expected GuestEntries=0, got %d", metrics.GuestEntries)
	}
	if metrics.RunOperations != 0 {
		t.Errorf("Expected RunOperations=0, got %d", metrics.RunOperations)
	}

	// Run the demo guest: one page fault, one illegal instruction,
	// one shutdown call across three entries.
	touch := GuestEntryAddr + 9*PageSize
	m, _, _, _ := newScriptedMachine(t, DemoProgram(touch))
	if err := m.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := Metrics{
		GuestEntries:     3,
		PageFaultsServed: 1,
		IllegalsSkipped:  1,
		SBICalls:         1,
		Resets:           1,
		FatalTraps:       0,
		MapOperations:    1,
		LoadOperations:   0,
		RunOperations:    1,
	}
	got := GetMetrics()
	ignoreTimes := cmpopts.IgnoreFields(Metrics{}, "AvgEntryTimeNs", "AvgRunTimeNs")
	if diff := cmp.Diff(want, got, ignoreTimes); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}

	t.Logf("Final metrics: %+v", got)

	ResetMetrics()
	if GetMetrics().GuestEntries != 0 {
		t.Error("ResetMetrics did not clear counters")
	}
}
