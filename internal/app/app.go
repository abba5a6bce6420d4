// Package app wires the window search and the drag-and-drop driver into the
// two things the command line and the HTTP service do: list candidate
// windows, and open a path in the best one.
package app

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/emacshere/internal/dnd"
	"github.com/bryanchriswhite/emacshere/internal/logger"
	"github.com/bryanchriswhite/emacshere/internal/task"
	"github.com/bryanchriswhite/emacshere/internal/window"
)

// Dialer opens a display connection
type Dialer func(display string) (window.Conn, error)

// DialX11 connects to a real X server
func DialX11(display string) (window.Conn, error) {
	conn, err := window.Dial(display)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// titler is implemented by connections that can look up window titles
type titler interface {
	Title(win xproto.Window) string
}

// Options configures a Runner
type Options struct {
	Display    string
	Class      string
	MaxVersion uint32
}

// Runner performs searches and drops, each on a fresh connection
type Runner struct {
	dial Dialer
	opts Options
	log  *zerolog.Logger
}

// NewRunner returns a runner dialing with dial
func NewRunner(dial Dialer, opts Options) *Runner {
	return &Runner{
		dial: dial,
		opts: opts,
		log:  logger.WithComponent("app"),
	}
}

// Listed is a candidate window with its title
type Listed struct {
	window.Candidate
	Title string `json:"title"`
	Best  bool   `json:"best"`
}

// Listing is the outcome of a search, for display
type Listing struct {
	Class   string         `json:"class"`
	Windows []Listed       `json:"windows"`
	Result  *window.Result `json:"result"`
}

// List searches for candidate windows without dropping anything. Windows
// are ordered by id; the search records them in completion order, which
// depends on how many round trips each one took.
func (r *Runner) List() (*Listing, error) {
	conn, err := r.dial(r.opts.Display)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res := r.search(window.NewClient(conn, task.New()))
	listing := &Listing{
		Class:   r.opts.Class,
		Windows: make([]Listed, 0, len(res.Candidates)),
		Result:  res,
	}
	t, hasTitles := conn.(titler)
	for _, cand := range res.Candidates {
		l := Listed{
			Candidate: cand,
			Best:      res.FoundVisible && cand.Window == res.Best,
		}
		if hasTitles {
			l.Title = t.Title(cand.Window)
		}
		listing.Windows = append(listing.Windows, l)
	}
	sort.Slice(listing.Windows, func(i, j int) bool {
		return listing.Windows[i].Window < listing.Windows[j].Window
	})
	return listing, nil
}

// Open drops path onto the most recently used visible window of the
// configured class. The search result is returned whenever the search ran;
// the session whenever the drop started. observe, when not nil, sees every
// drag-and-drop state change.
func (r *Runner) Open(path string, observe func(dnd.Session)) (*window.Result, *dnd.Session, error) {
	conn, err := r.dial(r.opts.Display)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	client := window.NewClient(conn, task.New())
	res := r.search(client)
	if err := res.Err(); err != nil {
		return res, nil, fmt.Errorf("%w (class %q)", err, r.opts.Class)
	}

	r.log.Debug().
		Str("window", window.FormatID(res.Best)).
		Str("path", path).
		Msg("Dropping onto best window")

	driver := dnd.New(client, dnd.Options{
		MaxVersion: r.opts.MaxVersion,
		Observer:   observe,
	})
	sess, err := driver.Drop(res.Best, path)
	return res, sess, err
}

func (r *Runner) search(client *window.Client) *window.Result {
	res := window.NewSearcher(client, r.opts.Class).Search(client.Conn().Root())
	r.log.Debug().Int("rounds", res.Rounds).Msg("Window lookup finished")
	return res
}
