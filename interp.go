package nativetcl

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/feather-lang/nativetcl/foreign"
)

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Interp is a Tcl interpreter instance.
//
// Create a new interpreter with [New] and always call [Interp.Close] when done.
// An interpreter is not safe for concurrent use from multiple goroutines.
//
//	interp, err := nativetcl.New()
//	if err != nil {
//	    return err
//	}
//	defer interp.Close()
//	result, err := interp.Eval("expr {2 + 2}")
type Interp struct {
	_ noCopy

	rt     foreign.Runtime
	ptr    foreign.Interp // zero once closed
	logger *zap.Logger
}

// New creates a new Tcl interpreter and runs Tcl_Init on it.
//
// The first interpreter or object created on a runtime runs the runtime's
// process bootstrap. If Tcl_Init fails the interpreter is deleted and the
// error carries Tcl's message.
//
//	interp, err := nativetcl.New(nativetcl.WithSafeMode())
func New(opts ...Option) (*Interp, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	ensureInitialized(cfg.runtime, cfg.logger)

	ptr := cfg.runtime.CreateInterp()
	if ptr == 0 {
		return nil, nullPointer("Tcl_CreateInterp")
	}
	i := &Interp{rt: cfg.runtime, ptr: ptr, logger: cfg.logger}

	var status foreign.Status
	refLocked(func() { status = cfg.runtime.Init(ptr) })
	if _, err := i.check(status); err != nil {
		i.logger.Debug("Tcl_Init failed", zap.Error(err))
		i.Close()
		return nil, err
	}
	if cfg.safe {
		if err := i.MakeSafe(); err != nil {
			i.Close()
			return nil, err
		}
	}

	i.logger.Debug("interpreter created", zap.Bool("safe", cfg.safe))
	return i, nil
}

// Close deletes the interpreter.
//
// Close is idempotent. Objects obtained from the interpreter stay valid
// until released; every other method fails once the interpreter is closed.
func (i *Interp) Close() {
	if i.ptr == 0 {
		return
	}
	refLocked(func() { i.rt.DeleteInterp(i.ptr) })
	i.ptr = 0
	i.logger.Debug("interpreter closed")
}

func (i *Interp) live() error {
	if i.ptr == 0 {
		return nullPointer("interpreter is closed")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Script Evaluation
// -----------------------------------------------------------------------------

// Eval evaluates a Tcl script and returns the interpreter's object result.
//
// A script that ends in return, break or continue still succeeds. A script
// that raises an error returns an [Error] of [KindInternal] whose Completion
// carries Tcl's message; the interpreter remains usable.
//
//	result, err := interp.Eval("set x 10; expr {$x * 2}")
//	if err != nil {
//	    return err
//	}
//	defer result.Release()
//	fmt.Println(result.String()) // "20"
func (i *Interp) Eval(script string) (*Obj, error) {
	if _, err := i.EvalCompletion(script); err != nil {
		return nil, err
	}
	return i.ObjResult()
}

// EvalCompletion evaluates a Tcl script and reports how it completed
// instead of returning its result.
//
//	c, err := interp.EvalCompletion("break")
//	// c.Code == nativetcl.CodeBreak, err == nil
func (i *Interp) EvalCompletion(script string) (Completion, error) {
	if err := i.live(); err != nil {
		return Completion{}, err
	}
	if err := checkCString(script); err != nil {
		return Completion{}, err
	}

	var status foreign.Status
	refLocked(func() { status = i.rt.Eval(i.ptr, script) })
	c, err := i.check(status)
	if err != nil {
		i.logger.Debug("evaluation failed", zap.Error(err))
	}
	return c, err
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// StringResult returns the interpreter's result as a string.
func (i *Interp) StringResult() (string, error) {
	if err := i.live(); err != nil {
		return "", err
	}
	b, ok := i.rt.StringResult(i.ptr)
	return decodeResult(b, ok, "Tcl_GetStringResult")
}

// ObjResult returns a new handle on the interpreter's result object.
// The caller owns the handle and must release it.
func (i *Interp) ObjResult() (*Obj, error) {
	if err := i.live(); err != nil {
		return nil, err
	}
	ptr := i.rt.ObjResult(i.ptr)
	if ptr == 0 {
		return nil, nullPointer("Tcl_GetObjResult")
	}
	return attach(i.rt, ptr, i.logger), nil
}

// -----------------------------------------------------------------------------
// Variables
// -----------------------------------------------------------------------------

// SetVar sets a global variable and returns the value actually stored,
// which may differ from value when traces are set on the variable.
//
//	v, err := interp.SetVar("name", "World")
func (i *Interp) SetVar(name, value string) (string, error) {
	if err := i.live(); err != nil {
		return "", err
	}
	if err := checkCString(name); err != nil {
		return "", err
	}
	if err := checkCString(value); err != nil {
		return "", err
	}

	var (
		b  []byte
		ok bool
	)
	refLocked(func() { b, ok = i.rt.SetVar(i.ptr, name, value, foreign.LeaveErrMsg) })
	if !ok {
		// TCL_LEAVE_ERR_MSG left the reason in the result.
		_, err := i.check(foreign.StatusError)
		return "", err
	}
	return decodeResult(b, true, "Tcl_SetVar2")
}

// -----------------------------------------------------------------------------
// Safe Mode
// -----------------------------------------------------------------------------

// MakeSafe removes unsafe commands from the interpreter. It cannot be undone.
func (i *Interp) MakeSafe() error {
	if err := i.live(); err != nil {
		return err
	}
	var status foreign.Status
	refLocked(func() { status = i.rt.MakeSafe(i.ptr) })
	_, err := i.check(status)
	return err
}

// IsSafe reports whether the interpreter is safe. It panics on a closed
// interpreter.
func (i *Interp) IsSafe() bool {
	if i.ptr == 0 {
		panic("nativetcl: IsSafe called on a closed interpreter")
	}
	switch v := i.rt.IsSafe(i.ptr); v {
	case 0:
		return false
	case 1:
		return true
	default:
		i.logger.Error("Tcl_IsSafe returned a non-boolean", zap.Int("value", v))
		panic(fmt.Sprintf("nativetcl: Tcl_IsSafe returned %d", v))
	}
}
