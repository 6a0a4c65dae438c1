package nativetcl

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/feather-lang/nativetcl/foreign/foreigntest"
)

func expectPanic(t *testing.T, f func()) (recovered any) {
	t.Helper()
	defer func() {
		recovered = recover()
		if recovered == nil {
			t.Error("expected panic")
		}
	}()
	f()
	return nil
}

func TestEnsureInitializedRunsOnce(t *testing.T) {
	rt := foreigntest.New()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ensureInitialized(rt, zap.NewNop())
		}()
	}
	wg.Wait()

	if rt.Bootstraps() != 1 {
		t.Errorf("expected 1 bootstrap, got %d", rt.Bootstraps())
	}
	if _, ok := rt.NameOfExecutable(); !ok {
		t.Error("expected executable to be recorded")
	}
}

func TestEnsureInitializedPerRuntime(t *testing.T) {
	a, b := foreigntest.New(), foreigntest.New()
	ensureInitialized(a, zap.NewNop())
	ensureInitialized(b, zap.NewNop())
	ensureInitialized(a, zap.NewNop())

	if a.Bootstraps() != 1 || b.Bootstraps() != 1 {
		t.Errorf("expected one bootstrap each, got %d and %d", a.Bootstraps(), b.Bootstraps())
	}
}

func TestBootstrapFailureIsRemembered(t *testing.T) {
	rt := foreigntest.New()
	rt.NoExecutable = true
	core, logs := observer.New(zapcore.ErrorLevel)

	first := expectPanic(t, func() { New(WithRuntime(rt), WithLogger(zap.New(core))) })
	second := expectPanic(t, func() { NewObj(WithRuntime(rt)) })

	if first != second {
		t.Errorf("expected the same failure, got %v and %v", first, second)
	}
	if rt.Bootstraps() != 1 {
		t.Errorf("expected bootstrap to be attempted once, got %d", rt.Bootstraps())
	}
	if rt.InterpsCreated() != 0 {
		t.Errorf("expected no interpreter on an uninitialized runtime, got %d", rt.InterpsCreated())
	}
	if logs.Len() != 1 {
		t.Errorf("expected one error log entry, got %v", logs.All())
	}
}

func TestBootstrapWithoutInvocationPath(t *testing.T) {
	prev := invocationPath
	invocationPath = func() (string, bool) { return "", false }
	t.Cleanup(func() { invocationPath = prev })

	rt := foreigntest.New()
	expectPanic(t, func() { ensureInitialized(rt, zap.NewNop()) })

	if rt.Bootstraps() != 0 {
		t.Errorf("expected FindExecutable not to run, got %d", rt.Bootstraps())
	}
}
