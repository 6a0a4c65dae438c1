package nativetcl

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/feather-lang/nativetcl/foreign"
)

// Option configures an [Interp] or [Obj] at creation time.
type Option func(*config)

type config struct {
	runtime foreign.Runtime
	logger  *zap.Logger
	safe    bool
}

func newConfig(opts []Option) (config, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}
	if cfg.runtime == nil {
		rt, err := foreign.Native()
		if err != nil {
			return cfg, fmt.Errorf("nativetcl: no runtime configured: %w", err)
		}
		cfg.runtime = rt
	}
	return cfg, nil
}

// WithRuntime selects the foreign runtime. The default is [foreign.Native].
//
//	rt, err := wasm.Load(ctx, "tcl.wasm")
//	interp, err := nativetcl.New(nativetcl.WithRuntime(rt))
func WithRuntime(rt foreign.Runtime) Option {
	return func(c *config) {
		c.runtime = rt
	}
}

// WithLogger overrides the package logger for one handle.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithSafeMode makes a new interpreter safe before it is returned.
// It has no effect on [NewObj].
func WithSafeMode() Option {
	return func(c *config) {
		c.safe = true
	}
}
