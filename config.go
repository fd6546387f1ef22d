package wasmrt

import (
	"go.uber.org/zap"

	"github.com/kjx98/wasmrt/wasmlog"
)

// Config holds the tunable limits and dependencies a Program is built
// with, following the functional-options idiom used across the pack's
// service-style repos rather than a sprawling constructor parameter list.
type Config struct {
	MemoryPageLimit   uint32
	ValueStackLimit   int
	FrameStackLimit   int
	AllowMemoryGrowth bool
	Logger            *zap.Logger
}

func defaultConfig() Config {
	return Config{
		MemoryPageLimit:   1 << 16, // 4 GiB worth of 64 KiB pages, the Wasm MVP ceiling
		ValueStackLimit:   defaultInterpValueLimit,
		FrameStackLimit:   defaultInterpLabelLimit,
		AllowMemoryGrowth: true,
		Logger:            wasmlog.Nop(),
	}
}

// Option configures a Program at construction time.
type Option func(*Config)

// WithMemoryPageLimit caps how many 64 KiB pages any memory in the program
// may grow to, regardless of a module's own declared maximum.
func WithMemoryPageLimit(pages uint32) Option {
	return func(c *Config) { c.MemoryPageLimit = pages }
}

// WithStackLimits overrides the interpreter's operand/label stack depth
// limits (StackWithLimit capacities) used by every call frame.
func WithStackLimits(valueLimit, frameLimit int) Option {
	return func(c *Config) {
		c.ValueStackLimit = valueLimit
		c.FrameStackLimit = frameLimit
	}
}

// WithAllowMemoryGrowth toggles whether GrowMemory can ever succeed,
// independent of a module's declared maximum (spec.md §9's Open Question
// resolution: still returns the old page count on success, -1 on refusal).
func WithAllowMemoryGrowth(allow bool) Option {
	return func(c *Config) { c.AllowMemoryGrowth = allow }
}

// WithLogger overrides the program's base structured logger; module loggers
// are derived children of it (wasmlog.Module).
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) { c.Logger = log }
}
