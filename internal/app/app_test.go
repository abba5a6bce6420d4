package app_test

import (
	"errors"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/emacshere/internal/app"
	"github.com/bryanchriswhite/emacshere/internal/dnd"
	"github.com/bryanchriswhite/emacshere/internal/window"
	"github.com/bryanchriswhite/emacshere/internal/window/xfake"
)

// titled adds window titles to the fake server
type titled struct {
	*xfake.Conn
	titles map[xproto.Window]string
}

func (t titled) Title(win xproto.Window) string {
	return t.titles[win]
}

func dialer(conn window.Conn) app.Dialer {
	return func(string) (window.Conn, error) {
		return conn, nil
	}
}

func acceptAll(x *xfake.Conn, target xproto.Window) {
	var data [5]uint32
	data[0] = uint32(target)
	data[1] = 1
	x.Queue(xproto.ClientMessageEvent{
		Format: 32,
		Window: target,
		Type:   x.Atom("XdndStatus"),
		Data:   xproto.ClientMessageDataUnionData32New(data[:]),
	})
	x.Queue(xproto.ClientMessageEvent{
		Format: 32,
		Window: target,
		Type:   x.Atom("XdndFinished"),
		Data:   xproto.ClientMessageDataUnionData32New(data[:]),
	})
}

func TestOpenDropsOnNewestWindow(t *testing.T) {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, 0x10, "emacs", true, 5)
	x.AddClient(xfake.RootWindow, 0x20, "emacs", true, 9)
	x.AddClient(xfake.RootWindow, 0x30, "xterm", true, 50)
	x.SetCard32(0x20, "XdndAware", xproto.AtomAtom, 5)
	acceptAll(x, 0x20)

	var states []dnd.State
	r := app.NewRunner(dialer(x), app.Options{Class: "emacs", MaxVersion: 5})
	res, sess, err := r.Open("/tmp/notes.org", func(s dnd.Session) {
		states = append(states, s.State)
	})

	require.NoError(t, err)
	require.Equal(t, xproto.Window(0x20), res.Best)
	require.Equal(t, xproto.Window(0x20), sess.Target)
	require.Equal(t, dnd.StateFinished, sess.State)
	require.Equal(t, dnd.StateFinished, states[len(states)-1])
	require.True(t, x.Closed())
}

func TestOpenWithoutWindow(t *testing.T) {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, 0x10, "xterm", true, 5)

	r := app.NewRunner(dialer(x), app.Options{Class: "emacs", MaxVersion: 5})
	res, sess, err := r.Open("/tmp/x", nil)

	require.ErrorIs(t, err, window.ErrNoMatchingWindow)
	require.ErrorContains(t, err, `"emacs"`)
	require.NotNil(t, res)
	require.Nil(t, sess)
	require.Empty(t, x.Sent())
}

func TestOpenWithoutVisibleWindow(t *testing.T) {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, 0x10, "emacs", false, 5)

	r := app.NewRunner(dialer(x), app.Options{Class: "emacs", MaxVersion: 5})
	_, sess, err := r.Open("/tmp/x", nil)

	require.ErrorIs(t, err, window.ErrNoVisibleWindow)
	require.Nil(t, sess)
}

func TestOpenDialFailure(t *testing.T) {
	boom := errors.New("cannot open display")
	r := app.NewRunner(func(string) (window.Conn, error) {
		return nil, boom
	}, app.Options{Class: "emacs"})

	res, sess, err := r.Open("/tmp/x", nil)
	require.ErrorIs(t, err, boom)
	require.Nil(t, res)
	require.Nil(t, sess)
}

func TestList(t *testing.T) {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, 0x10, "emacs", true, 5)
	x.AddClient(xfake.RootWindow, 0x20, "emacs", false, 9)
	x.AddClient(xfake.RootWindow, 0x30, "emacs", true, 7)

	conn := titled{Conn: x, titles: map[xproto.Window]string{0x30: "*scratch*"}}
	r := app.NewRunner(dialer(conn), app.Options{Class: "emacs"})
	listing, err := r.List()
	require.NoError(t, err)

	require.Equal(t, "emacs", listing.Class)
	require.Len(t, listing.Windows, 3)
	var best []xproto.Window
	for _, l := range listing.Windows {
		if l.Best {
			best = append(best, l.Window)
			require.Equal(t, "*scratch*", l.Title)
		}
	}
	require.Equal(t, []xproto.Window{0x30}, best)
	require.Empty(t, x.Sent())
}

func TestListOrdersByWindow(t *testing.T) {
	x := xfake.New()
	// The unmapped windows finish their search early and are recorded
	// before the visible one.
	x.AddClient(xfake.RootWindow, 0x10, "emacs", true, 5)
	x.AddClient(xfake.RootWindow, 0x20, "emacs", false, 9)
	x.AddClient(xfake.RootWindow, 0x30, "emacs", false, 7)

	r := app.NewRunner(dialer(x), app.Options{Class: "emacs"})
	listing, err := r.List()
	require.NoError(t, err)

	var order []xproto.Window
	for _, l := range listing.Windows {
		order = append(order, l.Window)
	}
	require.Equal(t, []xproto.Window{0x10, 0x20, 0x30}, order)
	require.True(t, listing.Windows[0].Best)
}

func TestListNothingFound(t *testing.T) {
	x := xfake.New()
	r := app.NewRunner(dialer(x), app.Options{Class: "emacs"})

	listing, err := r.List()
	require.NoError(t, err)
	require.Empty(t, listing.Windows)
	require.ErrorIs(t, listing.Result.Err(), window.ErrNoMatchingWindow)
}
