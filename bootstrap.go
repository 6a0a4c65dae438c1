package nativetcl

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/feather-lang/nativetcl/foreign"
)

// bootstrapGuard runs a runtime's executable discovery once. A failed run
// is remembered so every later caller fails the same way.
type bootstrapGuard struct {
	once    sync.Once
	failure any
}

var (
	guardsMu sync.Mutex
	guards   = make(map[foreign.Runtime]*bootstrapGuard)
)

// invocationPath returns argv[0] of the process.
var invocationPath = func() (string, bool) {
	if len(os.Args) == 0 || os.Args[0] == "" {
		return "", false
	}
	return os.Args[0], true
}

func guardFor(rt foreign.Runtime) *bootstrapGuard {
	guardsMu.Lock()
	defer guardsMu.Unlock()
	g, ok := guards[rt]
	if !ok {
		g = &bootstrapGuard{}
		guards[rt] = g
	}
	return g
}

// ensureInitialized runs Tcl_FindExecutable exactly once per runtime before
// anything else touches it. Racing callers block until the first run has
// finished. Failure is fatal: without it the runtime cannot work.
func ensureInitialized(rt foreign.Runtime, log *zap.Logger) {
	g := guardFor(rt)
	g.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				g.failure = r
			}
		}()
		bootstrap(rt, log)
	})
	if g.failure != nil {
		panic(g.failure)
	}
}

func bootstrap(rt foreign.Runtime, log *zap.Logger) {
	argv0, ok := invocationPath()
	if !ok {
		log.Error("cannot determine invocation path")
		panic("nativetcl: cannot determine invocation path")
	}

	rt.FindExecutable(argv0)

	name, ok := rt.NameOfExecutable()
	if !ok {
		log.Error("Tcl did not record the executable", zap.String("argv0", argv0))
		panic(fmt.Sprintf("nativetcl: Tcl_FindExecutable(%q) left no executable name", argv0))
	}
	log.Debug("Tcl runtime initialized", zap.ByteString("executable", name))
}
