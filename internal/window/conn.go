// Package window talks to the X server: a narrow connection interface with
// request cookies, property helpers, and the search for the target window.
package window

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// ErrConnectionClosed is returned by WaitForEvent once the display
// connection is gone.
var ErrConnectionClosed = errors.New("X connection closed")

// Cookie is a request that has been sent but whose reply has not been read.
// Calling it blocks until the reply arrives.
type Cookie[T any] func() (T, error)

// VoidCookie is a checked request without a reply. Calling it reports
// whether the server rejected the request.
type VoidCookie func() error

// Property is a raw GetProperty reply. Type is 0 when the window does not
// carry the property at all.
type Property struct {
	Type   xproto.Atom
	Format byte
	Value  []byte
}

// Conn is the part of an X connection the search and the drag-and-drop
// driver need. Requests are sent when the method is called; replies and
// request errors are collected later through the returned cookie, which lets
// callers keep several requests in flight.
type Conn interface {
	// Root returns the root window of the default screen
	Root() xproto.Window

	// NewWindowID allocates an identifier for a window this client creates
	NewWindowID() (xproto.Window, error)

	InternAtom(name string) Cookie[xproto.Atom]

	// GetProperty fetches at most maxLen bytes of prop, which must have type
	// typ unless typ is xproto.GetPropertyTypeAny
	GetProperty(win xproto.Window, prop, typ xproto.Atom, maxLen uint32) Cookie[*Property]

	// QueryTree lists the direct children of win, bottom-most first
	QueryTree(win xproto.Window) Cookie[[]xproto.Window]

	// GetMapState returns one of xproto.MapState*
	GetMapState(win xproto.Window) Cookie[byte]

	// CreateInputWindow creates a 1x1 InputOnly window with the given id
	CreateInputWindow(id, parent xproto.Window) VoidCookie
	DestroyWindow(win xproto.Window)

	SetSelectionOwner(owner xproto.Window, selection xproto.Atom) VoidCookie
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) VoidCookie

	// SendEvent delivers ev to dest with an empty event mask
	SendEvent(dest xproto.Window, ev xgb.Event) VoidCookie

	// Unchecked requests; failures show up as errors from WaitForEvent
	RaiseWindow(win xproto.Window)
	SetInputFocus(win xproto.Window)
	WarpPointer(dst xproto.Window, x, y int16)

	// WaitForEvent blocks until the next event arrives. X errors caused by
	// unchecked requests are returned as the error with a nil event.
	WaitForEvent() (xgb.Event, error)

	Close()
}

// RequestError is a checked request the server refused.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("X error %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
