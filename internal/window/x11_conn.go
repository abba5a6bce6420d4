package window

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// X11Conn implements Conn on top of an xgb connection
type X11Conn struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	util   *xgbutil.XUtil
}

// Dial connects to the X server named by display, or $DISPLAY when empty
func Dial(display string) (*X11Conn, error) {
	var (
		conn *xgb.Conn
		err  error
	)
	if display == "" {
		conn, err = xgb.NewConn()
	} else {
		conn, err = xgb.NewConnDisplay(display)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	return &X11Conn{
		conn:   conn,
		screen: setup.DefaultScreen(conn),
	}, nil
}

// Root returns the root window
func (c *X11Conn) Root() xproto.Window {
	return c.screen.Root
}

// NewWindowID allocates a fresh resource id
func (c *X11Conn) NewWindowID() (xproto.Window, error) {
	id, err := c.conn.NewId()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate window id: %w", err)
	}
	return xproto.Window(id), nil
}

// InternAtom sends an InternAtom request
func (c *X11Conn) InternAtom(name string) Cookie[xproto.Atom] {
	cookie := xproto.InternAtom(c.conn, false, uint16(len(name)), name)
	return func() (xproto.Atom, error) {
		reply, err := cookie.Reply()
		if err != nil {
			return 0, fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		return reply.Atom, nil
	}
}

// GetProperty sends a GetProperty request
func (c *X11Conn) GetProperty(win xproto.Window, prop, typ xproto.Atom, maxLen uint32) Cookie[*Property] {
	// The length is given in 32-bit units.
	cookie := xproto.GetProperty(c.conn, false, win, prop, typ, 0, (maxLen+3)/4)
	return func() (*Property, error) {
		reply, err := cookie.Reply()
		if err != nil {
			return nil, err
		}
		return &Property{
			Type:   reply.Type,
			Format: reply.Format,
			Value:  reply.Value,
		}, nil
	}
}

// QueryTree sends a QueryTree request
func (c *X11Conn) QueryTree(win xproto.Window) Cookie[[]xproto.Window] {
	cookie := xproto.QueryTree(c.conn, win)
	return func() ([]xproto.Window, error) {
		reply, err := cookie.Reply()
		if err != nil {
			return nil, err
		}
		return reply.Children, nil
	}
}

// GetMapState sends a GetWindowAttributes request
func (c *X11Conn) GetMapState(win xproto.Window) Cookie[byte] {
	cookie := xproto.GetWindowAttributes(c.conn, win)
	return func() (byte, error) {
		reply, err := cookie.Reply()
		if err != nil {
			return 0, err
		}
		return reply.MapState, nil
	}
}

// CreateInputWindow creates an unmapped InputOnly window
func (c *X11Conn) CreateInputWindow(id, parent xproto.Window) VoidCookie {
	return xproto.CreateWindowChecked(c.conn, 0, id, parent,
		0, 0, 1, 1, 0, xproto.WindowClassInputOnly,
		c.screen.RootVisual, 0, nil).Check
}

// DestroyWindow destroys a window this client created
func (c *X11Conn) DestroyWindow(win xproto.Window) {
	xproto.DestroyWindow(c.conn, win)
}

// SetSelectionOwner claims selection for owner
func (c *X11Conn) SetSelectionOwner(owner xproto.Window, selection xproto.Atom) VoidCookie {
	return xproto.SetSelectionOwnerChecked(c.conn, owner, selection, xproto.TimeCurrentTime).Check
}

// ChangeProperty replaces prop on win
func (c *X11Conn) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) VoidCookie {
	units := uint32(len(data))
	if format > 8 {
		units /= uint32(format / 8)
	}
	return xproto.ChangePropertyChecked(c.conn, xproto.PropModeReplace,
		win, prop, typ, format, units, data).Check
}

// SendEvent sends ev to dest without propagation
func (c *X11Conn) SendEvent(dest xproto.Window, ev xgb.Event) VoidCookie {
	return xproto.SendEventChecked(c.conn, false, dest, 0, string(ev.Bytes())).Check
}

// RaiseWindow restacks win above its siblings
func (c *X11Conn) RaiseWindow(win xproto.Window) {
	xproto.ConfigureWindow(c.conn, win, xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove})
}

// SetInputFocus focuses win
func (c *X11Conn) SetInputFocus(win xproto.Window) {
	xproto.SetInputFocus(c.conn, xproto.InputFocusPointerRoot, win, xproto.TimeCurrentTime)
}

// WarpPointer moves the pointer to (x, y) relative to dst
func (c *X11Conn) WarpPointer(dst xproto.Window, x, y int16) {
	xproto.WarpPointer(c.conn, xproto.WindowNone, dst, 0, 0, 0, 0, x, y)
}

// WaitForEvent blocks for the next event or asynchronous error
func (c *X11Conn) WaitForEvent() (xgb.Event, error) {
	ev, xerr := c.conn.WaitForEvent()
	if xerr != nil {
		return nil, xerr
	}
	if ev == nil {
		return nil, ErrConnectionClosed
	}
	return ev, nil
}

// Close closes the X11 connection
func (c *X11Conn) Close() {
	c.conn.Close()
}

// Title returns the window title, preferring _NET_WM_NAME over WM_NAME.
// It issues synchronous requests and must not be used from scheduler tasks.
func (c *X11Conn) Title(win xproto.Window) string {
	if c.util == nil {
		util, err := xgbutil.NewConnXgb(c.conn)
		if err != nil {
			return ""
		}
		c.util = util
	}
	if name, err := ewmh.WmNameGet(c.util, win); err == nil && name != "" {
		return name
	}
	name, err := icccm.WmNameGet(c.util, win)
	if err != nil {
		return ""
	}
	return name
}
