// Package foreign describes the C ABI surface of the Tcl library that
// nativetcl is built on.
//
// A [Runtime] is one way of reaching that ABI: the native backend links
// libtcl through cgo (build tag "tcl"), package foreign/wasm hosts a WASI
// build of libtcl with wazero, and package foreign/foreigntest provides an
// in-process fake for tests. Handles are opaque addresses in the runtime's
// memory; zero is the null pointer.
package foreign

import "errors"

// Handle is the Go type for a foreign pointer.
type Handle = uintptr

// Interp is a handle to a Tcl_Interp.
type Interp Handle

// Obj is a handle to a Tcl_Obj.
type Obj Handle

// Address is a location in the runtime's memory.
type Address Handle

// Status is the integer completion code returned by evaluation entry points.
type Status int32

// Completion codes defined by tcl.h.
const (
	StatusOK       Status = 0
	StatusError    Status = 1
	StatusReturn   Status = 2
	StatusBreak    Status = 3
	StatusContinue Status = 4
)

// LeaveErrMsg asks variable entry points to leave an error message in the
// interpreter result (TCL_LEAVE_ERR_MSG).
const LeaveErrMsg = 0x200

// Tcl_Obj layout contract.
//
//	typedef struct Tcl_Obj {
//	    int refCount;          offset 0, 4 bytes
//	    char *bytes;
//	    int length;
//	    const Tcl_ObjType *typePtr;
//	    ...
//	} Tcl_Obj;
//
// refCount is shared mutable state with the runtime. It is read and written
// as a native-endian int32 at ObjRefCountOffset from the object's address.
// Tcl 9 widened the field to Tcl_Size; the native backend refuses to start
// against such headers.
const (
	ObjRefCountOffset = 0
	ObjRefCountSize   = 4
)

// ErrUnavailable is returned by Native when the binary was built without
// libtcl support.
var ErrUnavailable = errors.New("native Tcl runtime unavailable: build with -tags tcl and cgo enabled")

// Runtime is the fixed set of foreign entry points used by nativetcl.
//
// Strings passed in are already free of NUL bytes and valid UTF-8; a
// Runtime only copies them into foreign memory. Byte slices returned are
// copies of foreign memory and the boolean is false when the foreign
// pointer was null.
//
// A Runtime is not safe for concurrent use unless stated otherwise by the
// implementation. Runtime values are used as map keys and must be
// comparable.
type Runtime interface {
	// CreateInterp wraps Tcl_CreateInterp. Zero means allocation failed.
	CreateInterp() Interp
	// DeleteInterp wraps Tcl_DeleteInterp.
	DeleteInterp(ip Interp)
	// Init wraps Tcl_Init.
	Init(ip Interp) Status
	// Eval wraps Tcl_EvalEx with a NUL-terminated script.
	Eval(ip Interp, script string) Status
	// StringResult wraps Tcl_GetStringResult.
	StringResult(ip Interp) ([]byte, bool)
	// ObjResult wraps Tcl_GetObjResult. The runtime keeps its own reference.
	ObjResult(ip Interp) Obj
	// MakeSafe wraps Tcl_MakeSafe.
	MakeSafe(ip Interp) Status
	// IsSafe wraps Tcl_IsSafe.
	IsSafe(ip Interp) int
	// SetVar wraps Tcl_SetVar2 with a NULL array index.
	SetVar(ip Interp, name, value string, flags int) ([]byte, bool)

	// NewObj wraps Tcl_NewObj. The new object has a reference count of zero.
	NewObj() Obj
	// FreeObj wraps TclFreeObj.
	FreeObj(obj Obj)
	// ObjString wraps Tcl_GetString.
	ObjString(obj Obj) ([]byte, bool)

	// FindExecutable wraps Tcl_FindExecutable.
	FindExecutable(argv0 string)
	// NameOfExecutable wraps Tcl_GetNameOfExecutable.
	NameOfExecutable() ([]byte, bool)

	// ReadInt32 loads a native-endian int32 from foreign memory.
	ReadInt32(addr Address) int32
	// WriteInt32 stores a native-endian int32 into foreign memory.
	WriteInt32(addr Address, v int32)
}

// String returns the tcl.h name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "TCL_OK"
	case StatusError:
		return "TCL_ERROR"
	case StatusReturn:
		return "TCL_RETURN"
	case StatusBreak:
		return "TCL_BREAK"
	case StatusContinue:
		return "TCL_CONTINUE"
	default:
		return "TCL_UNKNOWN"
	}
}
