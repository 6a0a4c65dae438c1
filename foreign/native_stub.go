//go:build !tcl || !cgo

package foreign

// Native reports ErrUnavailable: this binary was built without libtcl.
func Native() (Runtime, error) {
	return nil, ErrUnavailable
}
