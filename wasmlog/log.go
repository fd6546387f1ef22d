// Package wasmlog is the thin logging convention shared by the program
// registry and module instantiation: a *zap.Logger carried
// through the call chain, defaulting to a no-op so the core never forces
// log configuration on an embedder.
package wasmlog

import "go.uber.org/zap"

// Nop returns a logger that discards everything, used as the zero value
// wherever a caller does not install one via wasmrt.WithLogger.
func Nop() *zap.Logger { return zap.NewNop() }

// New builds a development-friendly console logger.
func New() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return Nop()
	}
	return l
}

// Module returns a child logger scoped to a single loaded module, the
// convention used at every AddModule/Instantiate/Execute call site.
func Module(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		base = Nop()
	}
	return base.With(zap.String("module", name))
}
