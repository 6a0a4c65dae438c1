package nativetcl

import (
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/feather-lang/nativetcl/foreign"
)

// refMu serializes every change to an embedded reference count, whether a
// handle makes it or Tcl makes it while running an interpreter call.
var refMu sync.Mutex

// refLocked runs a foreign call that can change reference counts, such as
// an evaluation replacing the interpreter result, under refMu.
func refLocked(f func()) {
	refMu.Lock()
	defer refMu.Unlock()
	f()
}

// Obj is a counted reference to a Tcl_Obj.
//
// Every live Obj accounts for exactly one unit of the object's embedded
// reference count. [Obj.Duplicate] adds a unit and [Obj.Release] gives one
// back; when the count drops to zero the object is freed. After Release the
// handle is dead: a second Release is a no-op and any other method panics.
//
// Handles may be duplicated and released from any goroutine, even while an
// interpreter that references the object is evaluating: interpreter calls
// that can change reference counts hold the same lock as the handles, so
// they wait for each other. Rendering is not covered. The object belongs to
// Tcl, which is single-threaded: do not call String while an interpreter
// holding the object evaluates on another goroutine.
//
//	obj, err := nativetcl.NewObj()
//	if err != nil {
//	    return err
//	}
//	defer obj.Release()
//	dup := obj.Duplicate()
//	dup.IsShared() // true
//	dup.Release()
type Obj struct {
	rt     foreign.Runtime
	ptr    foreign.Obj // zero once released
	logger *zap.Logger
}

// refCount and setRefCount are the only accessors of Tcl_Obj.refCount.
// Callers hold refMu.
func refCount(rt foreign.Runtime, ptr foreign.Obj) int32 {
	return rt.ReadInt32(foreign.Address(ptr) + foreign.ObjRefCountOffset)
}

func setRefCount(rt foreign.Runtime, ptr foreign.Obj, n int32) {
	rt.WriteInt32(foreign.Address(ptr)+foreign.ObjRefCountOffset, n)
}

// attach takes a new reference on ptr.
func attach(rt foreign.Runtime, ptr foreign.Obj, log *zap.Logger) *Obj {
	refMu.Lock()
	defer refMu.Unlock()
	setRefCount(rt, ptr, refCount(rt, ptr)+1)
	return &Obj{rt: rt, ptr: ptr, logger: log}
}

// NewObj creates a new empty Tcl object.
//
// Like [New], the first call on a runtime runs the runtime's bootstrap.
// [WithSafeMode] is ignored.
func NewObj(opts ...Option) (*Obj, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	ensureInitialized(cfg.runtime, cfg.logger)

	ptr := cfg.runtime.NewObj()
	if ptr == 0 {
		return nil, nullPointer("Tcl_NewObj")
	}
	return attach(cfg.runtime, ptr, cfg.logger), nil
}

// handleLocked returns the foreign pointer, panicking on a released handle.
func (o *Obj) handleLocked() foreign.Obj {
	if o.ptr == 0 {
		panic("nativetcl: use of released Obj")
	}
	return o.ptr
}

func (o *Obj) handle() foreign.Obj {
	refMu.Lock()
	defer refMu.Unlock()
	return o.handleLocked()
}

// Duplicate returns a new handle on the same object.
func (o *Obj) Duplicate() *Obj {
	refMu.Lock()
	defer refMu.Unlock()
	ptr := o.handleLocked()
	setRefCount(o.rt, ptr, refCount(o.rt, ptr)+1)
	return &Obj{rt: o.rt, ptr: ptr, logger: o.logger}
}

// Release gives up this handle's reference, freeing the object if it was
// the last one.
func (o *Obj) Release() {
	refMu.Lock()
	defer refMu.Unlock()
	if o.ptr == 0 {
		return
	}
	ptr := o.ptr
	o.ptr = 0

	n := refCount(o.rt, ptr) - 1
	setRefCount(o.rt, ptr, n)
	if n <= 0 {
		o.rt.FreeObj(ptr)
	}
}

// IsShared reports whether any other reference to the object exists, from
// another handle or from Tcl itself.
func (o *Obj) IsShared() bool {
	refMu.Lock()
	defer refMu.Unlock()
	return refCount(o.rt, o.handleLocked()) > 1
}

// String returns the string representation of the object, computing it
// from the internal representation if needed.
func (o *Obj) String() string {
	ptr := o.handle()
	b, ok := o.rt.ObjString(ptr)
	if !ok {
		o.logger.Error("Tcl_GetString returned NULL", zap.Uintptr("obj", uintptr(ptr)))
		panic("nativetcl: Tcl_GetString returned NULL")
	}
	if !utf8.Valid(b) {
		o.logger.Error("Tcl_GetString returned invalid UTF-8", zap.Uintptr("obj", uintptr(ptr)))
		panic("nativetcl: Tcl_GetString returned invalid UTF-8")
	}
	return string(b)
}

// Equal reports whether o and other refer to the same Tcl object.
// Two objects with the same string representation are not equal.
func (o *Obj) Equal(other *Obj) bool {
	if other == nil {
		return false
	}
	return o.rt == other.rt && o.handle() == other.handle()
}
