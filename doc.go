// Package nativetcl provides memory-safe handles over the Tcl 8.6 C library.
//
// # Overview
//
// nativetcl does not implement Tcl. It drives a real Tcl runtime reached
// through its C ABI, and makes the ownership rules of that ABI explicit:
//
//   - [Interp] owns one Tcl_Interp and deletes it exactly once on Close
//   - [Obj] owns one unit of a Tcl_Obj's embedded reference count
//   - [Completion] and [Error] translate Tcl's integer status codes without
//     losing the message Tcl left behind
//
// # Quick Start
//
//	import "github.com/feather-lang/nativetcl"
//
//	func main() {
//	    interp, err := nativetcl.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer interp.Close()
//
//	    result, err := interp.Eval("expr {2 + 2}")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer result.Release()
//	    fmt.Println(result.String()) // "4"
//
//	    interp.SetVar("name", "World")
//	}
//
// # Runtimes
//
// Every handle is bound to a [foreign.Runtime]. The default runtime links
// libtcl through cgo and is only available when built with -tags tcl:
//
//	go build -tags tcl ./...
//
// Package foreign/wasm runs a WASI build of libtcl inside wazero instead,
// and needs neither cgo nor a system Tcl:
//
//	rt, err := wasm.Load(ctx, "tcl.wasm", wasm.WithLibraryDir("/usr/share/tcl8.6"))
//	interp, err := nativetcl.New(nativetcl.WithRuntime(rt))
//
// The first handle created on a runtime runs Tcl_FindExecutable for it,
// once, no matter how many goroutines race to get there.
//
// # Errors
//
// Every fallible operation returns an [*Error]. Use errors.Is with the
// sentinels to branch on the kind:
//
//	_, err := interp.Eval("expr {")
//	if errors.Is(err, nativetcl.ErrInternal) {
//	    var terr *nativetcl.Error
//	    errors.As(err, &terr)
//	    fmt.Println(terr.Completion.Message) // missing close-brace
//	}
//
// Strings with NUL bytes or invalid UTF-8 are rejected before Tcl sees them.
// Broken contracts with the library itself, such as an unknown status code,
// panic.
//
// # Threads
//
// Tcl interpreters are single-threaded. An [Interp] must be used from one
// goroutine at a time, and with the native runtime that goroutine should
// hold runtime.LockOSThread.
//
// [Obj.Duplicate], [Obj.Release] and [Obj.IsShared] are safe from any
// goroutine, also while an interpreter that holds the object evaluates
// elsewhere: evaluation, SetVar, MakeSafe and Close take the same lock as
// reference count updates. [Obj.String] is not; render an object only when
// no interpreter holding it is running on another goroutine.
package nativetcl
