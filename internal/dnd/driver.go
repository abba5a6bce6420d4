package dnd

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/emacshere/internal/logger"
	"github.com/bryanchriswhite/emacshere/internal/window"
)

// dropX and dropY are the root coordinates announced in XdndPosition.
// (0,0) is avoided because some targets, Emacs among them, misbehave on it.
const (
	dropX = 1
	dropY = 1
)

// Options configures a Driver
type Options struct {
	// MaxVersion caps the negotiated protocol version; 0 means MaxVersion
	MaxVersion uint32

	// Observer, when set, receives a copy of the session on every state
	// change
	Observer func(Session)
}

// Driver drops paths onto target windows
type Driver struct {
	client *window.Client
	opts   Options
	log    *zerolog.Logger
}

// New returns a driver issuing its requests through client
func New(client *window.Client, opts Options) *Driver {
	if opts.MaxVersion == 0 || opts.MaxVersion > MaxVersion {
		opts.MaxVersion = MaxVersion
	}
	return &Driver{
		client: client,
		opts:   opts,
		log:    logger.WithComponent("dnd"),
	}
}

// atoms holds every atom the exchange uses
type atoms struct {
	aware, selection                    xproto.Atom
	enter, position, status, drop, done xproto.Atom
	uriList, actionCopy                 xproto.Atom
}

// exchange is the state of one Drop call
type exchange struct {
	*Driver
	sess    *Session
	atoms   atoms
	log     zerolog.Logger
	dropped bool
}

// Drop runs a complete exchange delivering path to target and returns once
// the target reports XdndFinished or the exchange fails. The session is
// returned in both cases.
//
// There is no timeout: a target that stops answering blocks Drop forever.
func (d *Driver) Drop(target xproto.Window, path string) (*Session, error) {
	sess := &Session{
		ID:     uuid.New(),
		Target: target,
		Path:   path,
		URI:    URI(path),
	}
	x := &exchange{
		Driver: d,
		sess:   sess,
		log: d.log.With().
			Str("session", sess.ID.String()).
			Str("target", window.FormatID(target)).
			Logger(),
	}

	if err := x.run(); err != nil {
		sess.Error = err.Error()
		x.transition(StateFailed)
		return sess, err
	}
	return sess, nil
}

func (x *exchange) transition(state State) {
	x.sess.State = state
	x.log.Debug().Str("state", string(state)).Msg("Drag-and-drop state")
	if x.opts.Observer != nil {
		x.opts.Observer(*x.sess)
	}
}

func (x *exchange) run() error {
	conn := x.client.Conn()
	sched := x.client.Scheduler()

	x.transition(StateNegotiating)
	if err := x.internAtoms(); err != nil {
		return err
	}

	version, err := x.client.AtomProperty(x.sess.Target, x.atoms.aware)
	if err != nil {
		return fmt.Errorf("failed to read XdndAware: %w", err)
	}
	if version == 0 {
		return ErrNotAware
	}
	x.sess.Version = uint32(version)
	if x.sess.Version > x.opts.MaxVersion {
		x.sess.Version = x.opts.MaxVersion
	}

	x.transition(StateSetup)
	source, err := conn.NewWindowID()
	if err != nil {
		return err
	}
	x.sess.Source = source

	// CreateWindow goes out before SetSelectionOwner names the new window.
	created := false
	g := sched.Group()
	g.Go(func() error {
		err := x.client.Await(conn.CreateInputWindow(source, conn.Root()), "creating DND source window")
		created = err == nil
		return err
	})
	g.Go(func() error {
		return x.client.Await(conn.SetSelectionOwner(source, x.atoms.selection), "setting selection owner")
	})
	err = g.Wait()
	if created {
		defer conn.DestroyWindow(source)
	}
	if err != nil {
		return err
	}

	g = sched.Group()
	g.Go(func() error {
		enter := x.message(x.atoms.enter, uint32(source), PackVersion(x.sess.Version), uint32(x.atoms.uriList))
		return x.client.Await(conn.SendEvent(x.sess.Target, enter), "sending XdndEnter event")
	})
	g.Go(func() error {
		position := x.message(x.atoms.position, uint32(source), 0, PackPosition(dropX, dropY),
			xproto.TimeCurrentTime, uint32(x.atoms.actionCopy))
		return x.client.Await(conn.SendEvent(x.sess.Target, position), "sending XdndPosition event")
	})
	if err := g.Wait(); err != nil {
		return err
	}
	x.transition(StateEntered)

	return x.handshake()
}

func (x *exchange) internAtoms() error {
	names := []struct {
		name string
		dst  *xproto.Atom
	}{
		{"XdndAware", &x.atoms.aware},
		{"XdndSelection", &x.atoms.selection},
		{"XdndEnter", &x.atoms.enter},
		{"XdndPosition", &x.atoms.position},
		{"XdndStatus", &x.atoms.status},
		{"XdndDrop", &x.atoms.drop},
		{"XdndFinished", &x.atoms.done},
		{"text/uri-list", &x.atoms.uriList},
		{"XdndActionCopy", &x.atoms.actionCopy},
	}

	g := x.client.Scheduler().Group()
	for _, n := range names {
		g.Go(func() error {
			atom, err := x.client.Atom(n.name)
			*n.dst = atom
			return err
		})
	}
	return g.Wait()
}

// message builds a format-32 client message to the target. Unused trailing
// fields are zero.
func (x *exchange) message(typ xproto.Atom, data ...uint32) xproto.ClientMessageEvent {
	var data32 [5]uint32
	copy(data32[:], data)
	return xproto.ClientMessageEvent{
		Format: 32,
		Window: x.sess.Target,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New(data32[:]),
	}
}

// handshake reacts to the target's messages one at a time, in arrival order
func (x *exchange) handshake() error {
	conn := x.client.Conn()
	for {
		ev, err := conn.WaitForEvent()
		if errors.Is(err, window.ErrConnectionClosed) || (ev == nil && err == nil) {
			return fmt.Errorf("failed waiting for target: %w", window.ErrConnectionClosed)
		}
		if err != nil {
			// Most likely one of the unchecked cosmetic requests.
			x.log.Warn().Err(err).Msg("Ignoring X error")
			continue
		}

		switch ev := ev.(type) {
		case xproto.ClientMessageEvent:
			switch ev.Type {
			case x.atoms.status:
				if err := x.onStatus(ev); err != nil {
					return err
				}
			case x.atoms.done:
				x.transition(StateFinished)
				return nil
			default:
				x.log.Warn().
					Str("type", window.FormatID(ev.Type)).
					Msg("Received unexpected client message")
			}
		case xproto.SelectionRequestEvent:
			if err := x.onSelectionRequest(ev); err != nil {
				return err
			}
		default:
			x.log.Warn().Str("event", ev.String()).Msg("Received unexpected event")
		}
	}
}

func (x *exchange) onStatus(ev xproto.ClientMessageEvent) error {
	if len(ev.Data.Data32) < 2 {
		x.log.Warn().Msg("Ignoring short XdndStatus")
		return nil
	}
	if x.dropped {
		x.log.Debug().Msg("Ignoring XdndStatus after drop")
		return nil
	}
	// TODO: send XdndLeave before giving up so the target can reset its
	// drag state.
	if ev.Data.Data32[1]&1 == 0 {
		return ErrRejected
	}

	conn := x.client.Conn()
	drop := x.message(x.atoms.drop, uint32(x.sess.Source), 0, xproto.TimeCurrentTime)
	if err := x.client.Await(conn.SendEvent(x.sess.Target, drop), "sending XdndDrop event"); err != nil {
		return err
	}
	x.dropped = true
	x.transition(StateDropped)

	// Bring the target forward. Errors from these arrive as events and are
	// ignored by the handshake loop.
	conn.RaiseWindow(x.sess.Target)
	conn.SetInputFocus(x.sess.Target)
	conn.WarpPointer(conn.Root(), 0, 0)
	conn.WarpPointer(x.sess.Target, 10, 10)
	return nil
}

func (x *exchange) onSelectionRequest(ev xproto.SelectionRequestEvent) error {
	if ev.Selection != x.atoms.selection {
		x.log.Warn().Str("selection", window.FormatID(ev.Selection)).Msg("Request for unknown selection")
		return nil
	}
	if ev.Target != x.atoms.uriList {
		x.log.Warn().Str("target_type", window.FormatID(ev.Target)).Msg("Request for unknown target type")
		return nil
	}
	if ev.Property == xproto.AtomNone {
		return ErrLegacySelection
	}

	conn := x.client.Conn()
	g := x.client.Scheduler().Group()
	g.Go(func() error {
		return x.client.Await(conn.ChangeProperty(ev.Requestor, ev.Property,
			xproto.AtomString, 8, []byte(x.sess.URI)), "returning selection")
	})
	g.Go(func() error {
		notify := xproto.SelectionNotifyEvent{
			Time:      ev.Time,
			Requestor: ev.Requestor,
			Selection: ev.Selection,
			Target:    ev.Target,
			Property:  ev.Property,
		}
		return x.client.Await(conn.SendEvent(x.sess.Target, notify), "sending selection notify")
	})
	if err := g.Wait(); err != nil {
		return err
	}
	x.transition(StateServed)
	return nil
}
