package mount

import "errors"

// Sentinel errors returned by mount operations.
var (
	// ErrEmptyCode marks an attempt to mount a Compiled whose code is
	// empty, which a fatal compile produces.
	ErrEmptyCode = errors.New("compiled code is empty")

	// ErrNoEntryPoint marks a module exporting none of the recognized
	// entry names.
	ErrNoEntryPoint = errors.New("module exports no entry point")

	// ErrMountFailed wraps surface and evaluation failures during the
	// mount sequence.
	ErrMountFailed = errors.New("mount failed")
)
