package minimap

import "github.com/wizterm/wizterm/internal/snapshot"

// Window is the engine-side handle to the observer window. Push sends one
// bundle over the transport; Size and Resize operate in logical pixels.
type Window interface {
	Push(bundle snapshot.Bundle) error
	Size() (width, height float64)
	Resize(width, height float64) error
	Close() error
}

// Events carries the observer-to-engine signals. Ready fires once after the
// observer mounts. FocusRequest asks the primary window to focus a pane.
// Destroyed fires when the window is torn down out from under the engine,
// e.g. the user closes it directly.
type Events struct {
	Ready        func()
	FocusRequest func(paneID string)
	Destroyed    func()
}

// WindowFactory opens a new observer window with the given event handlers
// wired before the window becomes visible.
type WindowFactory func(events Events) (Window, error)
