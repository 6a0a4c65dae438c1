// Package foreigntest provides an in-process foreign.Runtime for tests.
//
// Objects live in a byte arena laid out like Tcl_Obj, with the reference
// count at foreign.ObjRefCountOffset, so code under test exercises the same
// raw memory contract as the real library. Freed headers are never reused:
// every double free and every access to a freed header is counted.
//
// The evaluator understands a small Tcl subset: set, expr (integer
// arithmetic), return, break, continue, error, exec (hidden in safe
// interpreters), $var substitution, braces and quotes.
package foreigntest

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/feather-lang/nativetcl/foreign"
)

// objHeaderSize is the arena stride for one object. Offsets below it are
// never handed out, so zero stays the null pointer.
const objHeaderSize = 16

type object struct {
	bytes []byte
	freed bool
}

type interp struct {
	vars    map[string]string
	result  foreign.Obj
	safe    bool
	deleted bool
}

// Runtime is a fake foreign.Runtime. The zero value is not usable; call New.
//
// The exported fields are failure knobs. Set them before handing the
// runtime to the code under test.
type Runtime struct {
	// FailCreateInterp makes CreateInterp return null.
	FailCreateInterp bool
	// FailNewObj makes NewObj return null.
	FailNewObj bool
	// InitStatus is returned by Init. A StatusError leaves InitMessage as
	// the interpreter result.
	InitStatus  foreign.Status
	InitMessage string
	// ForceStatus, when non-nil, replaces the status returned by Eval.
	ForceStatus *foreign.Status
	// NullStringResult makes StringResult return null.
	NullStringResult bool
	// InvalidUTF8Result makes StringResult return bytes that are not UTF-8.
	InvalidUTF8Result bool
	// NullObjResult makes ObjResult return null.
	NullObjResult bool
	// NullObjString makes ObjString return null.
	NullObjString bool
	// IsSafeValue, when non-nil, replaces the value returned by IsSafe.
	IsSafeValue *int
	// NoExecutable makes NameOfExecutable return null.
	NoExecutable bool

	mu         sync.Mutex
	mem        []byte
	objs       map[foreign.Obj]*object
	interps    map[foreign.Interp]*interp
	nextInterp foreign.Interp
	executable []byte

	bootstraps     atomic.Int64
	interpsCreated atomic.Int64
	interpsDeleted atomic.Int64
	frees          atomic.Int64
	doubleFrees    atomic.Int64
	badAccesses    atomic.Int64
}

var _ foreign.Runtime = (*Runtime)(nil)

// New creates an empty fake runtime.
func New() *Runtime {
	return &Runtime{
		InitMessage: "can't find a usable init.tcl",
		mem:         make([]byte, objHeaderSize),
		objs:        make(map[foreign.Obj]*object),
		interps:     make(map[foreign.Interp]*interp),
		nextInterp:  1,
	}
}

// Bootstraps returns how many times FindExecutable ran.
func (r *Runtime) Bootstraps() int { return int(r.bootstraps.Load()) }

// InterpsCreated returns how many interpreters were handed out.
func (r *Runtime) InterpsCreated() int { return int(r.interpsCreated.Load()) }

// InterpsDeleted returns how many interpreters were deleted.
func (r *Runtime) InterpsDeleted() int { return int(r.interpsDeleted.Load()) }

// Frees returns how many objects were freed.
func (r *Runtime) Frees() int { return int(r.frees.Load()) }

// DoubleFrees returns how many FreeObj calls hit an already freed object.
func (r *Runtime) DoubleFrees() int { return int(r.doubleFrees.Load()) }

// BadAccesses returns how many memory accesses touched freed or unknown
// objects, or interpreters that were already deleted.
func (r *Runtime) BadAccesses() int { return int(r.badAccesses.Load()) }

// LiveObjs returns the number of objects not yet freed.
func (r *Runtime) LiveObjs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.objs {
		if !o.freed {
			n++
		}
	}
	return n
}

// RefCount peeks at an object's embedded count without going through the
// code under test.
func (r *Runtime) RefCount(obj foreign.Obj) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(foreign.Address(obj) + foreign.ObjRefCountOffset)
}

// IsFreed reports whether obj has been freed.
func (r *Runtime) IsFreed(obj foreign.Obj) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objs[obj]
	return ok && o.freed
}

// Var returns a variable of a live interpreter, for assertions.
func (r *Runtime) Var(ip foreign.Interp, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.interps[ip]
	if !ok {
		return "", false
	}
	v, ok := in.vars[varName(name)]
	return v, ok
}

// -----------------------------------------------------------------------------
// Memory
// -----------------------------------------------------------------------------

func (r *Runtime) allocLocked(s string) foreign.Obj {
	obj := foreign.Obj(len(r.mem))
	r.mem = append(r.mem, make([]byte, objHeaderSize)...)
	r.objs[obj] = &object{bytes: []byte(s)}
	return obj
}

// checkLocked reports whether addr lies inside a live object header.
func (r *Runtime) checkLocked(addr foreign.Address) bool {
	obj := foreign.Obj(addr &^ (objHeaderSize - 1))
	o, ok := r.objs[obj]
	if !ok || o.freed || int(addr)+foreign.ObjRefCountSize > len(r.mem) {
		r.badAccesses.Add(1)
		return false
	}
	return true
}

func (r *Runtime) loadLocked(addr foreign.Address) int32 {
	if !r.checkLocked(addr) {
		return 0
	}
	return int32(binary.NativeEndian.Uint32(r.mem[addr:]))
}

func (r *Runtime) storeLocked(addr foreign.Address, v int32) {
	if !r.checkLocked(addr) {
		return
	}
	binary.NativeEndian.PutUint32(r.mem[addr:], uint32(v))
}

func (r *Runtime) incrLocked(obj foreign.Obj) {
	addr := foreign.Address(obj) + foreign.ObjRefCountOffset
	r.storeLocked(addr, r.loadLocked(addr)+1)
}

func (r *Runtime) decrLocked(obj foreign.Obj) {
	addr := foreign.Address(obj) + foreign.ObjRefCountOffset
	n := r.loadLocked(addr) - 1
	r.storeLocked(addr, n)
	if n <= 0 {
		r.freeLocked(obj)
	}
}

func (r *Runtime) freeLocked(obj foreign.Obj) {
	o, ok := r.objs[obj]
	if !ok || o.freed {
		r.doubleFrees.Add(1)
		return
	}
	o.freed = true
	o.bytes = nil
	r.frees.Add(1)
}

// ReadInt32 implements foreign.Runtime.
func (r *Runtime) ReadInt32(addr foreign.Address) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(addr)
}

// WriteInt32 implements foreign.Runtime.
func (r *Runtime) WriteInt32(addr foreign.Address, v int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(addr, v)
}

// NewObj implements foreign.Runtime.
func (r *Runtime) NewObj() foreign.Obj {
	if r.FailNewObj {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocLocked("")
}

// FreeObj implements foreign.Runtime.
func (r *Runtime) FreeObj(obj foreign.Obj) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freeLocked(obj)
}

// ObjString implements foreign.Runtime.
func (r *Runtime) ObjString(obj foreign.Obj) ([]byte, bool) {
	if r.NullObjString {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objs[obj]
	if !ok || o.freed {
		r.badAccesses.Add(1)
		return nil, false
	}
	return append([]byte(nil), o.bytes...), true
}

// -----------------------------------------------------------------------------
// Bootstrap
// -----------------------------------------------------------------------------

// FindExecutable implements foreign.Runtime.
func (r *Runtime) FindExecutable(argv0 string) {
	r.bootstraps.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if argv0 != "" {
		r.executable = []byte(argv0)
	}
}

// NameOfExecutable implements foreign.Runtime.
func (r *Runtime) NameOfExecutable() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.NoExecutable || r.executable == nil {
		return nil, false
	}
	return append([]byte(nil), r.executable...), true
}

// -----------------------------------------------------------------------------
// Interpreters
// -----------------------------------------------------------------------------

func (r *Runtime) interpLocked(ip foreign.Interp) *interp {
	in, ok := r.interps[ip]
	if !ok || in.deleted {
		r.badAccesses.Add(1)
		return nil
	}
	return in
}

// setResultLocked replaces the interpreter's result object, holding one
// reference on the new one and dropping the reference on the old one.
func (r *Runtime) setResultLocked(in *interp, s string) {
	obj := r.allocLocked(s)
	r.incrLocked(obj)
	if in.result != 0 {
		r.decrLocked(in.result)
	}
	in.result = obj
}

// CreateInterp implements foreign.Runtime.
func (r *Runtime) CreateInterp() foreign.Interp {
	if r.FailCreateInterp {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ip := r.nextInterp
	r.nextInterp++
	in := &interp{vars: make(map[string]string)}
	r.interps[ip] = in
	r.setResultLocked(in, "")
	r.interpsCreated.Add(1)
	return ip
}

// DeleteInterp implements foreign.Runtime.
func (r *Runtime) DeleteInterp(ip foreign.Interp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return
	}
	in.deleted = true
	if in.result != 0 {
		r.decrLocked(in.result)
		in.result = 0
	}
	r.interpsDeleted.Add(1)
}

// Init implements foreign.Runtime.
func (r *Runtime) Init(ip foreign.Interp) foreign.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return foreign.StatusError
	}
	if r.InitStatus == foreign.StatusError {
		r.setResultLocked(in, r.InitMessage)
	}
	return r.InitStatus
}

// Eval implements foreign.Runtime.
func (r *Runtime) Eval(ip foreign.Interp, script string) foreign.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return foreign.StatusError
	}
	status, result := in.eval(script)
	r.setResultLocked(in, result)
	if r.ForceStatus != nil {
		return *r.ForceStatus
	}
	return status
}

// StringResult implements foreign.Runtime.
func (r *Runtime) StringResult(ip foreign.Interp) ([]byte, bool) {
	if r.NullStringResult {
		return nil, false
	}
	if r.InvalidUTF8Result {
		return []byte{0xff, 0xfe, 'x'}, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return nil, false
	}
	return append([]byte(nil), r.objs[in.result].bytes...), true
}

// ObjResult implements foreign.Runtime.
func (r *Runtime) ObjResult(ip foreign.Interp) foreign.Obj {
	if r.NullObjResult {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return 0
	}
	return in.result
}

// MakeSafe implements foreign.Runtime.
func (r *Runtime) MakeSafe(ip foreign.Interp) foreign.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return foreign.StatusError
	}
	in.safe = true
	return foreign.StatusOK
}

// IsSafe implements foreign.Runtime.
func (r *Runtime) IsSafe(ip foreign.Interp) int {
	if r.IsSafeValue != nil {
		return *r.IsSafeValue
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in != nil && in.safe {
		return 1
	}
	return 0
}

// SetVar implements foreign.Runtime.
func (r *Runtime) SetVar(ip foreign.Interp, name, value string, flags int) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.interpLocked(ip)
	if in == nil {
		return nil, false
	}
	if err := in.setVar(name, value); err != nil {
		if flags&foreign.LeaveErrMsg != 0 {
			r.setResultLocked(in, err.Error())
		}
		return nil, false
	}
	return []byte(in.vars[varName(name)]), true
}
