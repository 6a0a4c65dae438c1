// Package wasm runs a WASI build of libtcl inside wazero and exposes it as a
// foreign.Runtime.
//
// The module must be a WASI reactor (or a command built with
// -mexec-model=reactor) that exports its linear memory, malloc and free,
// and the Tcl entry points listed in [RequiredExports]. TclFreeObj is
// internal to libtcl and has to be exported explicitly, for example with
// -Wl,--export=TclFreeObj.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/feather-lang/nativetcl/foreign"
)

// ErrMissingExport is returned when the module lacks a required export.
var ErrMissingExport = errors.New("wasm: module is missing a required export")

// RequiredExports are the functions a Tcl module must export.
var RequiredExports = []string{
	"malloc",
	"free",
	"Tcl_CreateInterp",
	"Tcl_DeleteInterp",
	"Tcl_Init",
	"Tcl_EvalEx",
	"Tcl_GetStringResult",
	"Tcl_GetObjResult",
	"Tcl_MakeSafe",
	"Tcl_IsSafe",
	"Tcl_SetVar2",
	"Tcl_NewObj",
	"TclFreeObj",
	"Tcl_GetString",
	"Tcl_FindExecutable",
	"Tcl_GetNameOfExecutable",
}

// maxStringLen bounds reads of NUL-terminated strings from linear memory.
const maxStringLen = 16 << 20

// Runtime is a libtcl module instance. Each Runtime has its own Tcl process
// state, so it gets its own bootstrap in nativetcl.
//
// Calls are serialized by an internal mutex; the Tcl rule that an
// interpreter is used by one goroutine at a time still applies.
type Runtime struct {
	ctx     context.Context
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	module  api.Module
	memory  api.Memory
	logger  *zap.Logger

	mu     sync.Mutex
	fns    map[string]api.Function
	closed bool
}

var _ foreign.Runtime = (*Runtime)(nil)

// Load reads a module from path and instantiates it. See [New].
func Load(ctx context.Context, path string, opts ...Option) (*Runtime, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return New(ctx, code, opts...)
}

// New compiles and instantiates a libtcl module.
//
// ctx is kept for every later call into the module; cancelling it
// terminates the module.
func New(ctx context.Context, code []byte, opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create compilation cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	r := &Runtime{
		ctx:     ctx,
		runtime: wazero.NewRuntimeWithConfig(ctx, rtConfig),
		cache:   cache,
		logger:  cfg.logger,
		fns:     make(map[string]api.Function, len(RequiredExports)),
	}

	if err := r.instantiate(cfg, code); err != nil {
		r.Close()
		return nil, err
	}

	r.logger.Info("Tcl module loaded",
		zap.Int("exports", len(r.fns)),
		zap.Uint32("memory_bytes", r.memory.Size()))
	return r, nil
}

func (r *Runtime) instantiate(cfg config, code []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(r.ctx, r.runtime); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := r.runtime.CompileModule(r.ctx, code)
	if err != nil {
		return fmt.Errorf("compile Tcl module: %w", err)
	}

	exported := compiled.ExportedFunctions()
	for _, name := range RequiredExports {
		if _, ok := exported[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}

	// Reactors have no _start; commands must not run main.
	modConfig := wazero.NewModuleConfig().
		WithName("tcl").
		WithStartFunctions()
	if cfg.stdout != nil {
		modConfig = modConfig.WithStdout(cfg.stdout)
	}
	if cfg.stderr != nil {
		modConfig = modConfig.WithStderr(cfg.stderr)
	}
	if cfg.libraryDir != "" {
		modConfig = modConfig.
			WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(cfg.libraryDir, "/tcl")).
			WithEnv("TCL_LIBRARY", "/tcl")
	}

	mod, err := r.runtime.InstantiateModule(r.ctx, compiled, modConfig)
	if err != nil {
		return fmt.Errorf("instantiate Tcl module: %w", err)
	}
	r.module = mod

	if initFn := mod.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(r.ctx); err != nil {
			return fmt.Errorf("_initialize: %w", err)
		}
	}

	r.memory = mod.Memory()
	if r.memory == nil {
		return errors.New("wasm: module has no memory")
	}
	for _, name := range RequiredExports {
		r.fns[name] = mod.ExportedFunction(name)
	}
	return nil
}

// Close releases the module and the wazero runtime. Handles from this
// runtime must not be used afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.module != nil {
		if err := r.module.Close(r.ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.runtime.Close(r.ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(r.ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Debug("Tcl module closed")
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Calls and memory
// -----------------------------------------------------------------------------

// callLocked invokes an export. A trap leaves libtcl in an unknown state,
// so it panics.
func (r *Runtime) callLocked(name string, params ...uint64) uint64 {
	if r.closed {
		panic("wasm: call on closed runtime")
	}
	results, err := r.fns[name].Call(r.ctx, params...)
	if err != nil {
		r.logger.Error("Tcl module trapped", zap.String("function", name), zap.Error(err))
		panic(fmt.Sprintf("wasm: %s: %v", name, err))
	}
	if len(results) == 0 {
		return 0
	}
	return results[0]
}

// cstringLocked copies s into a fresh NUL-terminated buffer. The caller
// frees it with freeLocked.
func (r *Runtime) cstringLocked(s string) uint32 {
	ptr := uint32(r.callLocked("malloc", api.EncodeU32(uint32(len(s)+1))))
	if ptr == 0 {
		panic("wasm: malloc failed")
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if !r.memory.Write(ptr, buf) {
		panic("wasm: malloc returned memory out of range")
	}
	return ptr
}

func (r *Runtime) freeLocked(ptr uint32) {
	r.callLocked("free", api.EncodeU32(ptr))
}

// readCStringLocked copies a NUL-terminated string out of linear memory.
func (r *Runtime) readCStringLocked(ptr uint32) ([]byte, bool) {
	if ptr == 0 {
		return nil, false
	}
	var result []byte
	const chunkSize = 256
	for {
		off := ptr + uint32(len(result))
		n := uint32(chunkSize)
		if size := r.memory.Size(); off < size && size-off < n {
			n = size - off
		}
		chunk, ok := r.memory.Read(off, n)
		if !ok {
			panic(fmt.Sprintf("wasm: string at %#x runs past memory", ptr))
		}
		for idx, b := range chunk {
			if b == 0 {
				return append(result, chunk[:idx]...), true
			}
		}
		result = append(result, chunk...)
		if len(result) > maxStringLen {
			panic(fmt.Sprintf("wasm: string at %#x is not terminated", ptr))
		}
	}
}

func handle(v uint64) uint32 { return api.DecodeU32(v) }

func status(v uint64) foreign.Status { return foreign.Status(api.DecodeI32(v)) }

// ReadInt32 implements foreign.Runtime. Linear memory is little-endian.
func (r *Runtime) ReadInt32(addr foreign.Address) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.memory.ReadUint32Le(uint32(addr))
	if !ok {
		panic(fmt.Sprintf("wasm: read of %#x out of range", uint32(addr)))
	}
	return int32(v)
}

// WriteInt32 implements foreign.Runtime.
func (r *Runtime) WriteInt32(addr foreign.Address, v int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.memory.WriteUint32Le(uint32(addr), uint32(v)) {
		panic(fmt.Sprintf("wasm: write of %#x out of range", uint32(addr)))
	}
}

// -----------------------------------------------------------------------------
// Entry points
// -----------------------------------------------------------------------------

// CreateInterp implements foreign.Runtime.
func (r *Runtime) CreateInterp() foreign.Interp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return foreign.Interp(handle(r.callLocked("Tcl_CreateInterp")))
}

// DeleteInterp implements foreign.Runtime.
func (r *Runtime) DeleteInterp(ip foreign.Interp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callLocked("Tcl_DeleteInterp", uint64(ip))
}

// Init implements foreign.Runtime.
func (r *Runtime) Init(ip foreign.Interp) foreign.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return status(r.callLocked("Tcl_Init", uint64(ip)))
}

// Eval implements foreign.Runtime.
func (r *Runtime) Eval(ip foreign.Interp, script string) foreign.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.cstringLocked(script)
	defer r.freeLocked(cs)
	return status(r.callLocked("Tcl_EvalEx", uint64(ip), api.EncodeU32(cs), api.EncodeI32(-1), 0))
}

// StringResult implements foreign.Runtime.
func (r *Runtime) StringResult(ip foreign.Interp) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readCStringLocked(handle(r.callLocked("Tcl_GetStringResult", uint64(ip))))
}

// ObjResult implements foreign.Runtime.
func (r *Runtime) ObjResult(ip foreign.Interp) foreign.Obj {
	r.mu.Lock()
	defer r.mu.Unlock()
	return foreign.Obj(handle(r.callLocked("Tcl_GetObjResult", uint64(ip))))
}

// MakeSafe implements foreign.Runtime.
func (r *Runtime) MakeSafe(ip foreign.Interp) foreign.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return status(r.callLocked("Tcl_MakeSafe", uint64(ip)))
}

// IsSafe implements foreign.Runtime.
func (r *Runtime) IsSafe(ip foreign.Interp) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(api.DecodeI32(r.callLocked("Tcl_IsSafe", uint64(ip))))
}

// SetVar implements foreign.Runtime.
func (r *Runtime) SetVar(ip foreign.Interp, name, value string, flags int) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cname := r.cstringLocked(name)
	defer r.freeLocked(cname)
	cvalue := r.cstringLocked(value)
	defer r.freeLocked(cvalue)
	ptr := r.callLocked("Tcl_SetVar2", uint64(ip),
		api.EncodeU32(cname), 0, api.EncodeU32(cvalue), api.EncodeI32(int32(flags)))
	return r.readCStringLocked(handle(ptr))
}

// NewObj implements foreign.Runtime.
func (r *Runtime) NewObj() foreign.Obj {
	r.mu.Lock()
	defer r.mu.Unlock()
	return foreign.Obj(handle(r.callLocked("Tcl_NewObj")))
}

// FreeObj implements foreign.Runtime.
func (r *Runtime) FreeObj(obj foreign.Obj) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callLocked("TclFreeObj", uint64(obj))
}

// ObjString implements foreign.Runtime.
func (r *Runtime) ObjString(obj foreign.Obj) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readCStringLocked(handle(r.callLocked("Tcl_GetString", uint64(obj))))
}

// FindExecutable implements foreign.Runtime. The path is recorded as given;
// the guest cannot see the host file system outside its mounts.
func (r *Runtime) FindExecutable(argv0 string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.cstringLocked(argv0)
	defer r.freeLocked(cs)
	r.callLocked("Tcl_FindExecutable", api.EncodeU32(cs))
}

// NameOfExecutable implements foreign.Runtime.
func (r *Runtime) NameOfExecutable() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readCStringLocked(handle(r.callLocked("Tcl_GetNameOfExecutable")))
}
