package nativetcl_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/feather-lang/nativetcl"
	"github.com/feather-lang/nativetcl/foreign"
	"github.com/feather-lang/nativetcl/foreign/foreigntest"
)

func newInterp(t *testing.T, rt *foreigntest.Runtime, opts ...nativetcl.Option) *nativetcl.Interp {
	t.Helper()
	opts = append([]nativetcl.Option{nativetcl.WithRuntime(rt)}, opts...)
	interp, err := nativetcl.New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(interp.Close)
	return interp
}

func evalString(t *testing.T, interp *nativetcl.Interp, script string) string {
	t.Helper()
	result, err := interp.Eval(script)
	if err != nil {
		t.Fatalf("Eval(%q) failed: %v", script, err)
	}
	defer result.Release()
	return result.String()
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestNew(t *testing.T) {
	rt := foreigntest.New()
	interp := newInterp(t, rt)

	if got := evalString(t, interp, "expr {2 + 2}"); got != "4" {
		t.Errorf("expected '4', got %q", got)
	}
	if rt.InterpsCreated() != 1 {
		t.Errorf("expected 1 interpreter, got %d", rt.InterpsCreated())
	}
}

func TestEvalMultipleCommands(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	if got := evalString(t, interp, "set x 10; expr {$x * 2}"); got != "20" {
		t.Errorf("expected '20', got %q", got)
	}
}

func TestSetVar(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	stored, err := interp.SetVar("x", "5")
	if err != nil {
		t.Fatalf("SetVar failed: %v", err)
	}
	if stored != "5" {
		t.Errorf("expected stored value '5', got %q", stored)
	}
	if got := evalString(t, interp, "return $x"); got != "5" {
		t.Errorf("expected '5', got %q", got)
	}
}

func TestSetVarInterpolation(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	if _, err := interp.SetVar("name", "World"); err != nil {
		t.Fatalf("SetVar failed: %v", err)
	}
	if got := evalString(t, interp, `set greeting "Hello, $name!"`); got != "Hello, World!" {
		t.Errorf("expected 'Hello, World!', got %q", got)
	}
}

func TestSetVarFailure(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	_, err := interp.SetVar("missing::x", "1")
	if !errors.Is(err, nativetcl.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	var terr *nativetcl.Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Completion.Code != nativetcl.CodeError {
		t.Errorf("expected CodeError, got %v", terr.Completion.Code)
	}
	if !strings.Contains(terr.Completion.Message, "parent namespace") {
		t.Errorf("expected namespace message, got %q", terr.Completion.Message)
	}
}

func TestSetVarRejectsBadStrings(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	tests := []struct {
		name, value string
		want        error
	}{
		{"a\x00b", "1", nativetcl.ErrNulBytes},
		{"x", "1\x002", nativetcl.ErrNulBytes},
		{"\xff", "1", nativetcl.ErrInvalidUTF8},
		{"x", "\xc3\x28", nativetcl.ErrInvalidUTF8},
	}
	for _, tt := range tests {
		if _, err := interp.SetVar(tt.name, tt.value); !errors.Is(err, tt.want) {
			t.Errorf("SetVar(%q, %q): expected %v, got %v", tt.name, tt.value, tt.want, err)
		}
	}
}

func TestEvalError(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	_, err := interp.Eval("expr {")
	if !errors.Is(err, nativetcl.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	var terr *nativetcl.Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Completion.Message == "" {
		t.Error("expected diagnostic text")
	}
	if !strings.Contains(err.Error(), terr.Completion.Message) {
		t.Errorf("expected %q in %q", terr.Completion.Message, err.Error())
	}

	// The interpreter stays usable.
	if got := evalString(t, interp, "expr {1 + 1}"); got != "2" {
		t.Errorf("expected '2', got %q", got)
	}
}

func TestEvalScriptError(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	_, err := interp.Eval(`error "something went wrong"`)
	var terr *nativetcl.Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if terr.Completion.Message != "something went wrong" {
		t.Errorf("expected 'something went wrong', got %q", terr.Completion.Message)
	}
}

func TestEvalCompletion(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	tests := []struct {
		script string
		want   nativetcl.Code
	}{
		{"set x 1", nativetcl.CodeOK},
		{"return 7", nativetcl.CodeReturn},
		{"break", nativetcl.CodeBreak},
		{"continue", nativetcl.CodeContinue},
	}
	for _, tt := range tests {
		c, err := interp.EvalCompletion(tt.script)
		if err != nil {
			t.Errorf("EvalCompletion(%q) failed: %v", tt.script, err)
			continue
		}
		if c.Code != tt.want {
			t.Errorf("EvalCompletion(%q): expected %v, got %v", tt.script, tt.want, c.Code)
		}
		if c.Message != "" {
			t.Errorf("EvalCompletion(%q): expected no message, got %q", tt.script, c.Message)
		}
	}

	c, err := interp.EvalCompletion("expr {1 +}")
	if !errors.Is(err, nativetcl.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if c.Code != nativetcl.CodeError || c.Message == "" {
		t.Errorf("expected CodeError with message, got %+v", c)
	}
}

func TestEvalControlFlowSucceeds(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	for _, script := range []string{"return done", "break", "continue"} {
		result, err := interp.Eval(script)
		if err != nil {
			t.Errorf("Eval(%q) failed: %v", script, err)
			continue
		}
		result.Release()
	}
	if got := evalString(t, interp, "return done"); got != "done" {
		t.Errorf("expected 'done', got %q", got)
	}
}

func TestEvalRejectsBadStringsBeforeForeignCall(t *testing.T) {
	rt := foreigntest.New()
	interp := newInterp(t, rt)

	// Any status reaching the completion model would now panic.
	bogus := foreign.Status(42)
	rt.ForceStatus = &bogus

	tests := []struct {
		script string
		want   error
	}{
		{"set x 1\x00", nativetcl.ErrNulBytes},
		{"set x \xff", nativetcl.ErrInvalidUTF8},
		{"\xff\x00", nativetcl.ErrInvalidUTF8},
	}
	for _, tt := range tests {
		if _, err := interp.Eval(tt.script); !errors.Is(err, tt.want) {
			t.Errorf("Eval(%q): expected %v, got %v", tt.script, tt.want, err)
		}
	}

	_, err := interp.Eval("a\x00b")
	var terr *nativetcl.Error
	if !errors.As(err, &terr) || terr.Value != "a\x00b" {
		t.Errorf("expected error carrying the offending string, got %v", err)
	}
}

func TestSafeMode(t *testing.T) {
	interp := newInterp(t, foreigntest.New())

	if interp.IsSafe() {
		t.Error("expected fresh interpreter to be unsafe")
	}
	if got := evalString(t, interp, "exec echo hi"); got != "echo hi" {
		t.Errorf("expected 'echo hi', got %q", got)
	}

	if err := interp.MakeSafe(); err != nil {
		t.Fatalf("MakeSafe failed: %v", err)
	}
	if !interp.IsSafe() {
		t.Error("expected interpreter to be safe")
	}
	if _, err := interp.Eval("exec echo hi"); !errors.Is(err, nativetcl.ErrInternal) {
		t.Errorf("expected exec to be hidden, got %v", err)
	}
}

func TestWithSafeMode(t *testing.T) {
	interp := newInterp(t, foreigntest.New(), nativetcl.WithSafeMode())

	if !interp.IsSafe() {
		t.Error("expected interpreter to be safe")
	}
}

func TestIsSafeRejectsNonBoolean(t *testing.T) {
	rt := foreigntest.New()
	core, logs := observer.New(zapcore.ErrorLevel)
	interp := newInterp(t, rt, nativetcl.WithLogger(zap.New(core)))

	v := 2
	rt.IsSafeValue = &v
	mustPanic(t, "IsSafe", func() { interp.IsSafe() })

	if logs.FilterMessage("Tcl_IsSafe returned a non-boolean").Len() != 1 {
		t.Errorf("expected one error log entry, got %v", logs.All())
	}
}

func TestUnknownStatusPanics(t *testing.T) {
	rt := foreigntest.New()
	core, logs := observer.New(zapcore.ErrorLevel)
	interp := newInterp(t, rt, nativetcl.WithLogger(zap.New(core)))

	bogus := foreign.Status(5)
	rt.ForceStatus = &bogus
	mustPanic(t, "Eval", func() { interp.Eval("set x 1") })

	entries := logs.FilterMessage("invalid completion code").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log entry, got %v", logs.All())
	}
	if got := entries[0].ContextMap()["status"]; got != int32(5) {
		t.Errorf("expected status 5 in log, got %v", got)
	}
}

func TestInitFailureDeletesInterp(t *testing.T) {
	rt := foreigntest.New()
	rt.InitStatus = foreign.StatusError

	_, err := nativetcl.New(nativetcl.WithRuntime(rt))
	if !errors.Is(err, nativetcl.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if !strings.Contains(err.Error(), "init.tcl") {
		t.Errorf("expected Tcl_Init message, got %v", err)
	}
	if rt.InterpsCreated() != 1 || rt.InterpsDeleted() != 1 {
		t.Errorf("expected 1 created and 1 deleted, got %d and %d",
			rt.InterpsCreated(), rt.InterpsDeleted())
	}
	if rt.LiveObjs() != 0 {
		t.Errorf("expected no live objects, got %d", rt.LiveObjs())
	}
}

func TestCreateInterpNull(t *testing.T) {
	rt := foreigntest.New()
	rt.FailCreateInterp = true

	_, err := nativetcl.New(nativetcl.WithRuntime(rt))
	if !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Fatalf("expected ErrNullPointer, got %v", err)
	}
}

func TestClose(t *testing.T) {
	rt := foreigntest.New()
	interp, err := nativetcl.New(nativetcl.WithRuntime(rt))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	interp.Close()
	interp.Close()
	if rt.InterpsDeleted() != 1 {
		t.Errorf("expected 1 deletion, got %d", rt.InterpsDeleted())
	}

	if _, err := interp.Eval("set x 1"); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("Eval: expected ErrNullPointer, got %v", err)
	}
	if _, err := interp.EvalCompletion("set x 1"); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("EvalCompletion: expected ErrNullPointer, got %v", err)
	}
	if _, err := interp.SetVar("x", "1"); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("SetVar: expected ErrNullPointer, got %v", err)
	}
	if _, err := interp.StringResult(); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("StringResult: expected ErrNullPointer, got %v", err)
	}
	if _, err := interp.ObjResult(); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("ObjResult: expected ErrNullPointer, got %v", err)
	}
	if err := interp.MakeSafe(); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("MakeSafe: expected ErrNullPointer, got %v", err)
	}
	mustPanic(t, "IsSafe", func() { interp.IsSafe() })

	if rt.BadAccesses() != 0 {
		t.Errorf("expected no access to the deleted interpreter, got %d", rt.BadAccesses())
	}
}

func TestStringResult(t *testing.T) {
	rt := foreigntest.New()
	interp := newInterp(t, rt)

	if _, err := interp.EvalCompletion("set x hello"); err != nil {
		t.Fatalf("EvalCompletion failed: %v", err)
	}
	s, err := interp.StringResult()
	if err != nil {
		t.Fatalf("StringResult failed: %v", err)
	}
	if s != "hello" {
		t.Errorf("expected 'hello', got %q", s)
	}

	rt.NullStringResult = true
	if _, err := interp.StringResult(); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("expected ErrNullPointer, got %v", err)
	}
	rt.NullStringResult = false
	rt.InvalidUTF8Result = true
	if _, err := interp.StringResult(); !errors.Is(err, nativetcl.ErrInvalidUTF8) {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestErrorWithUnreadableDiagnostic(t *testing.T) {
	tests := []struct {
		name  string
		setup func(rt *foreigntest.Runtime)
		cause error
	}{
		{"null", func(rt *foreigntest.Runtime) { rt.NullStringResult = true }, nativetcl.ErrNullPointer},
		{"invalid utf-8", func(rt *foreigntest.Runtime) { rt.InvalidUTF8Result = true }, nativetcl.ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := foreigntest.New()
			interp := newInterp(t, rt)
			tt.setup(rt)

			_, err := interp.Eval("expr {")
			if !errors.Is(err, nativetcl.ErrInternal) {
				t.Errorf("expected ErrInternal, got %v", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("expected cause %v, got %v", tt.cause, err)
			}
			var terr *nativetcl.Error
			if !errors.As(err, &terr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if terr.Kind != nativetcl.KindInternal || terr.Cause == nil {
				t.Errorf("expected internal error with cause, got %+v", terr)
			}
			if !strings.Contains(err.Error(), "caused by") {
				t.Errorf("expected cause in message, got %q", err.Error())
			}
		})
	}
}

func TestNullObjResult(t *testing.T) {
	rt := foreigntest.New()
	interp := newInterp(t, rt)
	rt.NullObjResult = true

	if _, err := interp.Eval("set x 1"); !errors.Is(err, nativetcl.ErrNullPointer) {
		t.Errorf("expected ErrNullPointer, got %v", err)
	}
}

func TestConcurrentNew(t *testing.T) {
	rt := foreigntest.New()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	interps := make([]*nativetcl.Interp, 2)
	for n := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			interps[n], errs[n] = nativetcl.New(nativetcl.WithRuntime(rt))
		}()
	}
	wg.Wait()

	for n, err := range errs {
		if err != nil {
			t.Fatalf("New #%d failed: %v", n, err)
		}
		interps[n].Close()
	}
	if rt.Bootstraps() != 1 {
		t.Errorf("expected bootstrap to run once, ran %d times", rt.Bootstraps())
	}
}

func TestWithLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rt := foreigntest.New()

	interp, err := nativetcl.New(nativetcl.WithRuntime(rt), nativetcl.WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := interp.Eval("expr {"); err == nil {
		t.Fatal("expected error")
	}
	interp.Close()

	for _, msg := range []string{"Tcl runtime initialized", "interpreter created", "evaluation failed", "interpreter closed"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("expected one %q entry, got %v", msg, logs.All())
		}
	}
}

func TestSetLogger(t *testing.T) {
	prev := nativetcl.Logger()
	t.Cleanup(func() { nativetcl.SetLogger(prev) })

	core, logs := observer.New(zapcore.DebugLevel)
	nativetcl.SetLogger(zap.New(core))

	interp := newInterp(t, foreigntest.New())
	interp.Close()

	if logs.FilterMessage("interpreter closed").Len() != 1 {
		t.Errorf("expected package logger to be used, got %v", logs.All())
	}
}
