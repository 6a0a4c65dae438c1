//go:build tcl && cgo

package foreign

/*
#cgo pkg-config: tcl
#include <tcl.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// nativeRuntime calls libtcl directly. It has no state of its own: libtcl's
// process-wide state is the state.
type nativeRuntime struct{}

func init() {
	var obj C.Tcl_Obj
	if off := unsafe.Offsetof(obj.refCount); off != ObjRefCountOffset {
		panic(fmt.Sprintf("foreign: Tcl_Obj.refCount at offset %d, want %d", off, ObjRefCountOffset))
	}
	if size := unsafe.Sizeof(obj.refCount); size != ObjRefCountSize {
		panic(fmt.Sprintf("foreign: Tcl_Obj.refCount is %d bytes, want %d", size, ObjRefCountSize))
	}
}

// Native returns the libtcl backend. libtcl keeps its state per process, so
// every call returns the same comparable value.
//
// Tcl keeps thread-local allocator and notifier state. Goroutines driving a
// native interpreter should call runtime.LockOSThread for its lifetime.
func Native() (Runtime, error) {
	return nativeRuntime{}, nil
}

func interpPtr(ip Interp) *C.Tcl_Interp {
	return (*C.Tcl_Interp)(unsafe.Pointer(uintptr(ip)))
}

func objPtr(obj Obj) *C.Tcl_Obj {
	return (*C.Tcl_Obj)(unsafe.Pointer(uintptr(obj)))
}

// goBytes copies a NUL-terminated foreign string.
func goBytes(p *C.char) ([]byte, bool) {
	if p == nil {
		return nil, false
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(C.strlen(p))), true
}

func (nativeRuntime) CreateInterp() Interp {
	return Interp(uintptr(unsafe.Pointer(C.Tcl_CreateInterp())))
}

func (nativeRuntime) DeleteInterp(ip Interp) {
	C.Tcl_DeleteInterp(interpPtr(ip))
}

func (nativeRuntime) Init(ip Interp) Status {
	return Status(C.Tcl_Init(interpPtr(ip)))
}

func (nativeRuntime) Eval(ip Interp, script string) Status {
	cs := C.CString(script)
	defer C.free(unsafe.Pointer(cs))
	return Status(C.Tcl_EvalEx(interpPtr(ip), cs, -1, 0))
}

func (nativeRuntime) StringResult(ip Interp) ([]byte, bool) {
	return goBytes(C.Tcl_GetStringResult(interpPtr(ip)))
}

func (nativeRuntime) ObjResult(ip Interp) Obj {
	return Obj(uintptr(unsafe.Pointer(C.Tcl_GetObjResult(interpPtr(ip)))))
}

func (nativeRuntime) MakeSafe(ip Interp) Status {
	return Status(C.Tcl_MakeSafe(interpPtr(ip)))
}

func (nativeRuntime) IsSafe(ip Interp) int {
	return int(C.Tcl_IsSafe(interpPtr(ip)))
}

func (nativeRuntime) SetVar(ip Interp, name, value string, flags int) ([]byte, bool) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	cvalue := C.CString(value)
	defer C.free(unsafe.Pointer(cvalue))
	return goBytes(C.Tcl_SetVar2(interpPtr(ip), cname, nil, cvalue, C.int(flags)))
}

func (nativeRuntime) NewObj() Obj {
	return Obj(uintptr(unsafe.Pointer(C.Tcl_NewObj())))
}

func (nativeRuntime) FreeObj(obj Obj) {
	C.TclFreeObj(objPtr(obj))
}

func (nativeRuntime) ObjString(obj Obj) ([]byte, bool) {
	return goBytes(C.Tcl_GetString(objPtr(obj)))
}

func (nativeRuntime) FindExecutable(argv0 string) {
	cs := C.CString(argv0)
	defer C.free(unsafe.Pointer(cs))
	C.Tcl_FindExecutable(cs)
}

func (nativeRuntime) NameOfExecutable() ([]byte, bool) {
	return goBytes(C.Tcl_GetNameOfExecutable())
}

// Tcl_Obj is allocated by ckalloc with at least pointer alignment, so the
// int32 at offset 0 is always aligned.
func (nativeRuntime) ReadInt32(addr Address) int32 {
	return *(*int32)(unsafe.Pointer(uintptr(addr)))
}

func (nativeRuntime) WriteInt32(addr Address, v int32) {
	*(*int32)(unsafe.Pointer(uintptr(addr))) = v
}
