package window

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/emacshere/internal/task"
)

// maxStringProperty bounds string property reads
const maxStringProperty = 16 * 1024

// Client issues requests on a Conn from scheduler tasks. Every helper sends
// its request, yields so sibling tasks can send theirs, and only then reads
// the reply.
type Client struct {
	conn  Conn
	sched *task.Scheduler
	atoms map[string]xproto.Atom
}

// NewClient binds conn to a scheduler
func NewClient(conn Conn, sched *task.Scheduler) *Client {
	return &Client{
		conn:  conn,
		sched: sched,
		atoms: make(map[string]xproto.Atom),
	}
}

// Conn returns the underlying connection
func (c *Client) Conn() Conn {
	return c.conn
}

// Scheduler returns the scheduler the client yields to
func (c *Client) Scheduler() *task.Scheduler {
	return c.sched
}

// Atom interns name once and caches the result
func (c *Client) Atom(name string) (xproto.Atom, error) {
	if atom, ok := c.atoms[name]; ok {
		return atom, nil
	}
	cookie := c.conn.InternAtom(name)
	c.sched.Yield()
	atom, err := cookie()
	if err != nil {
		return 0, err
	}
	c.atoms[name] = atom
	return atom, nil
}

// Property reads prop from win. ok is false when the property is missing or
// does not have the requested type and format; a present but empty property
// yields ok with a zero-length value.
func (c *Client) Property(win xproto.Window, prop, typ xproto.Atom, format byte, maxLen uint32) (value []byte, ok bool, err error) {
	cookie := c.conn.GetProperty(win, prop, typ, maxLen)
	c.sched.Yield()
	reply, err := cookie()
	if err != nil {
		return nil, false, err
	}
	if reply.Type != typ || reply.Format != format {
		return nil, false, nil
	}
	return reply.Value, true, nil
}

// HasProperty reports whether win carries prop with any type
func (c *Client) HasProperty(win xproto.Window, prop xproto.Atom) (bool, error) {
	cookie := c.conn.GetProperty(win, prop, xproto.GetPropertyTypeAny, 0)
	c.sched.Yield()
	reply, err := cookie()
	if err != nil {
		return false, err
	}
	return reply.Type != 0, nil
}

// StringProperty reads an 8-bit STRING property
func (c *Client) StringProperty(win xproto.Window, prop xproto.Atom) (string, bool, error) {
	value, ok, err := c.Property(win, prop, xproto.AtomString, 8, maxStringProperty)
	if !ok || err != nil {
		return "", ok, err
	}
	return string(value), true, nil
}

// Card32Property reads the first CARDINAL of a property, 0 when absent
func (c *Client) Card32Property(win xproto.Window, prop xproto.Atom) (uint32, error) {
	value, ok, err := c.Property(win, prop, xproto.AtomCardinal, 32, 4)
	if !ok || err != nil || len(value) < 4 {
		return 0, err
	}
	return xgb.Get32(value), nil
}

// AtomProperty reads the first ATOM of a property, 0 when absent
func (c *Client) AtomProperty(win xproto.Window, prop xproto.Atom) (xproto.Atom, error) {
	value, ok, err := c.Property(win, prop, xproto.AtomAtom, 32, 4)
	if !ok || err != nil || len(value) < 4 {
		return 0, err
	}
	return xproto.Atom(xgb.Get32(value)), nil
}

// Children lists the direct children of win
func (c *Client) Children(win xproto.Window) ([]xproto.Window, error) {
	cookie := c.conn.QueryTree(win)
	c.sched.Yield()
	return cookie()
}

// Viewable reports whether win and all of its ancestors are mapped
func (c *Client) Viewable(win xproto.Window) (bool, error) {
	cookie := c.conn.GetMapState(win)
	c.sched.Yield()
	state, err := cookie()
	if err != nil {
		return false, err
	}
	return state == xproto.MapStateViewable, nil
}

// Await yields and then checks a request, naming op in the error
func (c *Client) Await(cookie VoidCookie, op string) error {
	c.sched.Yield()
	if err := cookie(); err != nil {
		return &RequestError{Op: op, Err: err}
	}
	return nil
}

// ParseClass splits a WM_CLASS value into its instance and class names.
// WM_CLASS holds two NUL-terminated strings: instance\0class\0
func ParseClass(raw string) (instance, class string) {
	parts := strings.Split(raw, "\x00")
	instance = parts[0]
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

// FormatID renders a window or atom id the way xprop and xwininfo do
func FormatID[T ~uint32](id T) string {
	return fmt.Sprintf("%#x", uint32(id))
}
