// Package xfake is an in-memory X server for tests. It keeps a window tree
// with properties and map states, records every request in the order it was
// issued, and replays a scripted queue of inbound events.
package xfake

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/emacshere/internal/window"
)

// RootWindow is the id of the fake root window
const RootWindow xproto.Window = 0x100

// Sent is an event delivered with SendEvent
type Sent struct {
	Dest  xproto.Window
	Event xgb.Event
}

type fakeWindow struct {
	children []xproto.Window
	props    map[xproto.Atom]*window.Property
	mapState byte
}

type inbound struct {
	ev  xgb.Event
	err error
}

// Conn implements window.Conn
type Conn struct {
	mu sync.Mutex

	windows map[xproto.Window]*fakeWindow
	atoms   map[string]xproto.Atom
	names   map[xproto.Atom]string
	nextID  xproto.Window

	log    []string
	sent   []Sent
	queue  []inbound
	fail   map[string]error
	closed bool
}

var _ window.Conn = (*Conn)(nil)

// New returns a server holding only the root window
func New() *Conn {
	c := &Conn{
		windows: map[xproto.Window]*fakeWindow{},
		atoms:   map[string]xproto.Atom{},
		names:   map[xproto.Atom]string{},
		nextID:  0x400000,
		fail:    map[string]error{},
	}
	for name, atom := range map[string]xproto.Atom{
		"ATOM":     xproto.AtomAtom,
		"CARDINAL": xproto.AtomCardinal,
		"STRING":   xproto.AtomString,
		"WM_NAME":  xproto.AtomWmName,
		"WM_CLASS": xproto.AtomWmClass,
	} {
		c.atoms[name] = atom
		c.names[atom] = name
	}
	c.windows[RootWindow] = &fakeWindow{
		props:    map[xproto.Atom]*window.Property{},
		mapState: xproto.MapStateViewable,
	}
	return c
}

// Atom interns name without logging a request
func (c *Conn) Atom(name string) xproto.Atom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intern(name)
}

func (c *Conn) intern(name string) xproto.Atom {
	if atom, ok := c.atoms[name]; ok {
		return atom
	}
	atom := xproto.Atom(1000 + len(c.atoms))
	c.atoms[name] = atom
	c.names[atom] = name
	return atom
}

func (c *Conn) atomName(atom xproto.Atom) string {
	if name, ok := c.names[atom]; ok {
		return name
	}
	return fmt.Sprintf("%d", atom)
}

// AddWindow creates win as the top-most child of parent. New windows are
// viewable.
func (c *Conn) AddWindow(parent, win xproto.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.windows[parent]
	if !ok {
		panic(fmt.Sprintf("xfake: no parent window %#x", parent))
	}
	p.children = append(p.children, win)
	c.windows[win] = &fakeWindow{
		props:    map[xproto.Atom]*window.Property{},
		mapState: xproto.MapStateViewable,
	}
}

// RemoveWindow forgets win while leaving it listed under its parent, like a
// window destroyed between QueryTree and a later request
func (c *Conn) RemoveWindow(win xproto.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, win)
}

// SetProperty stores a raw property value
func (c *Conn) SetProperty(win xproto.Window, name string, typ xproto.Atom, format byte, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[win].props[c.intern(name)] = &window.Property{Type: typ, Format: format, Value: value}
}

// SetCard32 stores a 32-bit property of type typ
func (c *Conn) SetCard32(win xproto.Window, name string, typ xproto.Atom, value uint32) {
	buf := make([]byte, 4)
	xgb.Put32(buf, value)
	c.SetProperty(win, name, typ, 32, buf)
}

// SetTopLevel marks win with WM_STATE
func (c *Conn) SetTopLevel(win xproto.Window) {
	state := c.Atom("WM_STATE")
	c.SetProperty(win, "WM_STATE", state, 32, make([]byte, 8))
}

// SetClass stores WM_CLASS as instance\0class\0
func (c *Conn) SetClass(win xproto.Window, instance, class string) {
	c.SetProperty(win, "WM_CLASS", xproto.AtomString, 8, []byte(instance+"\x00"+class+"\x00"))
}

// SetUserTime stores _NET_WM_USER_TIME
func (c *Conn) SetUserTime(win xproto.Window, t uint32) {
	c.SetCard32(win, "_NET_WM_USER_TIME", xproto.AtomCardinal, t)
}

// SetMapState overrides the map state of win
func (c *Conn) SetMapState(win xproto.Window, state byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[win].mapState = state
}

// AddClient adds a top-level window under parent with the given WM_CLASS
// instance, map state and user time
func (c *Conn) AddClient(parent, win xproto.Window, instance string, viewable bool, userTime uint32) {
	c.AddWindow(parent, win)
	c.SetTopLevel(win)
	c.SetClass(win, instance, instance)
	if !viewable {
		c.SetMapState(win, xproto.MapStateUnmapped)
	}
	if userTime != 0 {
		c.SetUserTime(win, userTime)
	}
}

// PropertyValue returns the stored value of a property and whether it exists
func (c *Conn) PropertyValue(win xproto.Window, name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[win]
	if !ok {
		return nil, false
	}
	prop, ok := w.props[c.intern(name)]
	if !ok {
		return nil, false
	}
	return prop.Value, true
}

// Fail makes every later checked request of kind op fail with err. op is the
// first word of the request's log entry, e.g. "CreateWindow".
func (c *Conn) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[op] = err
}

// Queue appends inbound events for WaitForEvent
func (c *Conn) Queue(events ...xgb.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range events {
		c.queue = append(c.queue, inbound{ev: ev})
	}
}

// QueueError appends an asynchronous X error for WaitForEvent
func (c *Conn) QueueError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, inbound{err: err})
}

// Log returns the requests issued so far, plus "reply ..." entries recorded
// when a cookie was read
func (c *Conn) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// Sent returns every event delivered through SendEvent
func (c *Conn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Closed reports whether Close was called
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) record(format string, args ...interface{}) string {
	entry := fmt.Sprintf(format, args...)
	c.log = append(c.log, entry)
	return entry
}

func (c *Conn) replied(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, "reply "+entry)
}

func (c *Conn) checked(op, entry string) window.VoidCookie {
	err := c.fail[op]
	return func() error {
		c.replied(entry)
		return err
	}
}

func badWindow(win xproto.Window) error {
	return fmt.Errorf("BadWindow %#x", uint32(win))
}

// Root returns RootWindow
func (c *Conn) Root() xproto.Window {
	return RootWindow
}

// NewWindowID hands out ids from the client's range
func (c *Conn) NewWindowID() (xproto.Window, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID, nil
}

// InternAtom interns name
func (c *Conn) InternAtom(name string) window.Cookie[xproto.Atom] {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("InternAtom %s", name)
	atom := c.intern(name)
	return func() (xproto.Atom, error) {
		c.replied(entry)
		return atom, nil
	}
}

// GetProperty looks the property up when the request is issued
func (c *Conn) GetProperty(win xproto.Window, prop, typ xproto.Atom, maxLen uint32) window.Cookie[*window.Property] {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("GetProperty %#x %s", uint32(win), c.atomName(prop))

	w, ok := c.windows[win]
	reply := &window.Property{}
	if ok {
		if p, found := w.props[prop]; found {
			reply.Type = p.Type
			reply.Format = p.Format
			if typ == xproto.GetPropertyTypeAny || typ == p.Type {
				value := p.Value
				if uint32(len(value)) > maxLen {
					value = value[:maxLen]
				}
				reply.Value = append([]byte(nil), value...)
			}
		}
	}
	return func() (*window.Property, error) {
		c.replied(entry)
		if !ok {
			return nil, badWindow(win)
		}
		return reply, nil
	}
}

// QueryTree lists the children of win
func (c *Conn) QueryTree(win xproto.Window) window.Cookie[[]xproto.Window] {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("QueryTree %#x", uint32(win))

	w, ok := c.windows[win]
	var children []xproto.Window
	if ok {
		children = append(children, w.children...)
	}
	return func() ([]xproto.Window, error) {
		c.replied(entry)
		if !ok {
			return nil, badWindow(win)
		}
		return children, nil
	}
}

// GetMapState returns the map state of win
func (c *Conn) GetMapState(win xproto.Window) window.Cookie[byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("GetWindowAttributes %#x", uint32(win))

	w, ok := c.windows[win]
	var state byte
	if ok {
		state = w.mapState
	}
	return func() (byte, error) {
		c.replied(entry)
		if !ok {
			return 0, badWindow(win)
		}
		return state, nil
	}
}

// CreateInputWindow adds an unmapped window under parent
func (c *Conn) CreateInputWindow(id, parent xproto.Window) window.VoidCookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("CreateWindow %#x", uint32(id))
	if c.fail["CreateWindow"] == nil {
		c.windows[id] = &fakeWindow{
			props:    map[xproto.Atom]*window.Property{},
			mapState: xproto.MapStateUnmapped,
		}
	}
	return c.checked("CreateWindow", entry)
}

// DestroyWindow removes win
func (c *Conn) DestroyWindow(win xproto.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("DestroyWindow %#x", uint32(win))
	delete(c.windows, win)
}

// SetSelectionOwner records the claim
func (c *Conn) SetSelectionOwner(owner xproto.Window, selection xproto.Atom) window.VoidCookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("SetSelectionOwner %#x %s", uint32(owner), c.atomName(selection))
	return c.checked("SetSelectionOwner", entry)
}

// ChangeProperty stores the property, creating the window record if needed
func (c *Conn) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) window.VoidCookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.record("ChangeProperty %#x %s", uint32(win), c.atomName(prop))
	if c.fail["ChangeProperty"] == nil {
		w, ok := c.windows[win]
		if !ok {
			w = &fakeWindow{props: map[xproto.Atom]*window.Property{}}
			c.windows[win] = w
		}
		w.props[prop] = &window.Property{Type: typ, Format: format, Value: append([]byte(nil), data...)}
	}
	return c.checked("ChangeProperty", entry)
}

// SendEvent records the event
func (c *Conn) SendEvent(dest xproto.Window, ev xgb.Event) window.VoidCookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := fmt.Sprintf("%T", ev)
	if msg, ok := ev.(xproto.ClientMessageEvent); ok {
		name = c.atomName(msg.Type)
	}
	entry := c.record("SendEvent %#x %s", uint32(dest), name)
	c.sent = append(c.sent, Sent{Dest: dest, Event: ev})
	return c.checked("SendEvent", entry)
}

// RaiseWindow records the request
func (c *Conn) RaiseWindow(win xproto.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ConfigureWindow %#x", uint32(win))
}

// SetInputFocus records the request
func (c *Conn) SetInputFocus(win xproto.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SetInputFocus %#x", uint32(win))
}

// WarpPointer records the request
func (c *Conn) WarpPointer(dst xproto.Window, x, y int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("WarpPointer %#x %d,%d", uint32(dst), x, y)
}

// WaitForEvent pops the next scripted event. An empty queue behaves like a
// closed connection so a test never blocks forever.
func (c *Conn) WaitForEvent() (xgb.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, window.ErrConnectionClosed
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	return next.ev, next.err
}

// Close marks the connection closed
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
