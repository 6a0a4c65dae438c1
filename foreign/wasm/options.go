package wasm

import (
	"io"

	"go.uber.org/zap"
)

// Option configures a [Runtime].
type Option func(*config)

type config struct {
	memoryLimitPages uint32
	cacheDir         string
	libraryDir       string
	stdout           io.Writer
	stderr           io.Writer
	logger           *zap.Logger
}

func defaultConfig() config {
	return config{
		logger: zap.NewNop(),
	}
}

// WithMemoryLimitPages caps the module's linear memory, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithCompilationCacheDir keeps compiled machine code in dir so later loads
// of the same module skip compilation.
func WithCompilationCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithLibraryDir mounts a Tcl script library (the directory holding
// init.tcl) read-only at /tcl and points TCL_LIBRARY at it. Without it
// Tcl_Init fails unless the library is embedded in the module.
//
//	wasm.WithLibraryDir("/usr/share/tcl8.6")
func WithLibraryDir(dir string) Option {
	return func(c *config) {
		c.libraryDir = dir
	}
}

// WithStdout sets where the module's standard output goes. It is
// discarded by default.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.stdout = w
	}
}

// WithStderr sets where the module's standard error goes. It is discarded
// by default.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		c.stderr = w
	}
}

// WithLogger sets the logger for load, close and trap events.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
