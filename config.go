package main

import (
	"github.com/xyproto/env/v2"
)

// A tiny self-hosting toolchain: a single-pass MiniC compiler targeting
// RISC-U (a 14-instruction subset of 32-bit RISC-V), an emulator for the
// resulting binaries with paging and a handful of syscalls, a disassembler,
// a record/replay debugger, and a bounded symbolic execution engine.

const versionString = "minic 1.0.0"

// Config holds the tunables that can be overridden through the environment.
// The defaults are the canonical values; overriding them is mostly useful
// for testing the self-limits without waiting for the full budgets.
type Config struct {
	Timeslice     uint32 // guest instructions per scheduler slice
	TraceLength   uint32 // symbolic trace entries
	ReplayLength  uint32 // instructions kept for crash replay
	HashTableSize uint32 // global symbol table buckets
}

// DefaultTimeslice is the number of instructions a context may execute
// before the timer interrupt returns control to the scheduler. Keep this
// large: interrupting guest kernel activity mid-syscall-wrapper is legal
// but makes traces noisy.
const DefaultTimeslice = 10000000

const (
	DefaultTraceLength  = 100000
	DefaultReplayLength = 100
	DefaultHashSize     = 1024
)

func LoadConfig() Config {
	return Config{
		Timeslice:     uint32(env.Int("MINIC_TIMESLICE", DefaultTimeslice)),
		TraceLength:   uint32(env.Int("MINIC_TRACE_LENGTH", DefaultTraceLength)),
		ReplayLength:  uint32(env.Int("MINIC_REPLAY_LENGTH", DefaultReplayLength)),
		HashTableSize: uint32(env.Int("MINIC_HASH_SIZE", DefaultHashSize)),
	}
}

// colorEnabled reports whether diagnostics should use ANSI colors.
// NO_COLOR wins over terminal detection (https://no-color.org).
func colorEnabled(isTerminal bool) bool {
	if env.Has("NO_COLOR") {
		return false
	}
	return isTerminal
}
