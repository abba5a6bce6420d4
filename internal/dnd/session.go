// Package dnd implements the source side of the XDND drag-and-drop protocol
// for a single file URI dropped onto one target window.
package dnd

import (
	"errors"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/google/uuid"
)

var (
	// ErrNotAware means the target has no XdndAware property
	ErrNotAware = errors.New("target window does not support drag-and-drop")
	// ErrRejected means the target answered XdndStatus without accepting
	ErrRejected = errors.New("target not accepting drag-and-drop")
	// ErrLegacySelection means the target asked for the selection without a
	// destination property, which only pre-ICCCM clients do
	ErrLegacySelection = errors.New("old-style selection protocol not supported")
)

// MaxVersion is the highest XDND protocol version this source speaks
const MaxVersion = 5

// State is a step of the source side of the exchange
type State string

const (
	StateNegotiating State = "negotiating"
	StateSetup       State = "setup"
	StateEntered     State = "entered"
	StateDropped     State = "dropped"
	StateServed      State = "served"
	StateFinished    State = "finished"
	StateFailed      State = "failed"
)

// Session is one drag-and-drop exchange with a target window
type Session struct {
	ID      uuid.UUID     `json:"id"`
	Source  xproto.Window `json:"source"`
	Target  xproto.Window `json:"target"`
	Version uint32        `json:"version"`
	Path    string        `json:"path"`
	URI     string        `json:"uri"`
	State   State         `json:"state"`
	Error   string        `json:"error,omitempty"`
}

// URI turns a local path into the text/uri-list entry sent to the target.
//
// The path is passed through as-is even when it names a file on another
// host: a target like Emacs strips file:// and resolves the rest through its
// own file name handlers, which is what a remote mount path needs.
func URI(path string) string {
	return "file://" + path
}

// PackPosition packs root coordinates the way XdndPosition carries them:
// x in the high 16 bits, y in the low 16 bits
func PackPosition(x, y uint16) uint32 {
	return uint32(x)<<16 | uint32(y)
}

// PackVersion places the protocol version in the high byte of XdndEnter's
// second field
func PackVersion(version uint32) uint32 {
	return version << 24
}
