package nativetcl_test

import (
	"errors"
	"fmt"

	"github.com/feather-lang/nativetcl"
	"github.com/feather-lang/nativetcl/foreign/foreigntest"
)

// The examples run against the in-process fake so they need no libtcl.
// Real programs drop WithRuntime to use the native library.

func ExampleInterp_Eval() {
	interp, err := nativetcl.New(nativetcl.WithRuntime(foreigntest.New()))
	if err != nil {
		panic(err)
	}
	defer interp.Close()

	interp.SetVar("x", "20")
	result, err := interp.Eval("expr {$x + 22}")
	if err != nil {
		panic(err)
	}
	defer result.Release()
	fmt.Println(result.String())
	// Output: 42
}

func ExampleInterp_Eval_error() {
	interp, err := nativetcl.New(nativetcl.WithRuntime(foreigntest.New()))
	if err != nil {
		panic(err)
	}
	defer interp.Close()

	_, err = interp.Eval(`error "disk full"`)
	var terr *nativetcl.Error
	if errors.As(err, &terr) {
		fmt.Println(terr.Completion.Code, terr.Completion.Message)
	}
	fmt.Println(err)
	// Output:
	// TCL_ERROR disk full
	// tcl: Tcl returned TCL_ERROR: disk full
}

func ExampleInterp_EvalCompletion() {
	interp, err := nativetcl.New(nativetcl.WithRuntime(foreigntest.New()))
	if err != nil {
		panic(err)
	}
	defer interp.Close()

	c, err := interp.EvalCompletion("set done 1; break")
	if err != nil {
		panic(err)
	}
	fmt.Println(c.Code)
	// Output: TCL_BREAK
}

func ExampleObj_Duplicate() {
	obj, err := nativetcl.NewObj(nativetcl.WithRuntime(foreigntest.New()))
	if err != nil {
		panic(err)
	}

	dup := obj.Duplicate()
	fmt.Println(obj.IsShared(), obj.Equal(dup))

	obj.Release()
	fmt.Println(dup.IsShared())
	dup.Release()
	// Output:
	// true true
	// false
}
