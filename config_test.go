package main

import (
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Timeslice != DefaultTimeslice {
		t.Errorf("timeslice = %d", cfg.Timeslice)
	}
	if cfg.TraceLength != DefaultTraceLength {
		t.Errorf("trace length = %d", cfg.TraceLength)
	}
	if cfg.ReplayLength != DefaultReplayLength {
		t.Errorf("replay length = %d", cfg.ReplayLength)
	}
	if cfg.HashTableSize != DefaultHashSize {
		t.Errorf("hash table size = %d", cfg.HashTableSize)
	}
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("MINIC_TIMESLICE", "1000")
	t.Setenv("MINIC_TRACE_LENGTH", "512")

	cfg := LoadConfig()

	if cfg.Timeslice != 1000 {
		t.Errorf("timeslice override = %d", cfg.Timeslice)
	}
	if cfg.TraceLength != 512 {
		t.Errorf("trace length override = %d", cfg.TraceLength)
	}
}

func TestColorEnabled(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if colorEnabled(true) {
		t.Error("NO_COLOR did not disable coloring")
	}
}
