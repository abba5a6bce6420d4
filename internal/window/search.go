package window

import (
	"errors"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/emacshere/internal/logger"
	"github.com/rs/zerolog"
)

var (
	// ErrNoMatchingWindow means no top-level window has the target class
	ErrNoMatchingWindow = errors.New("no matching window found")
	// ErrNoVisibleWindow means matching windows exist but none is viewable
	ErrNoVisibleWindow = errors.New("no matching window is visible")
)

// Candidate is a top-level window whose class matched
type Candidate struct {
	Window   xproto.Window `json:"window"`
	Visible  bool          `json:"visible"`
	UserTime uint32        `json:"user_time"`
}

// Result accumulates what a search saw. Every search task writes to the same
// Result; the scheduler runs one task at a time, so task order alone decides
// which of two equally recent windows wins.
type Result struct {
	FoundAny     bool          `json:"found_any"`
	FoundVisible bool          `json:"found_visible"`
	Best         xproto.Window `json:"best"`
	BestUserTime uint32        `json:"best_user_time"`
	Candidates   []Candidate   `json:"candidates"`
	Rounds       int           `json:"rounds"`
}

// Err reports why the search has no usable window, or nil
func (r *Result) Err() error {
	switch {
	case !r.FoundAny:
		return ErrNoMatchingWindow
	case !r.FoundVisible:
		return ErrNoVisibleWindow
	default:
		return nil
	}
}

// consider records a visible candidate. The first reading always wins over
// an unset best, even when it is zero; after that only a strictly newer
// user time replaces the best window.
func (r *Result) consider(win xproto.Window, userTime uint32) {
	if r.BestUserTime == 0 || userTime > r.BestUserTime {
		r.BestUserTime = userTime
		r.Best = win
	}
}

// Searcher finds the most recently used visible top-level window of one
// application class
type Searcher struct {
	client *Client
	class  string
	log    *zerolog.Logger
}

// NewSearcher returns a searcher matching WM_CLASS instance name class
func NewSearcher(client *Client, class string) *Searcher {
	return &Searcher{
		client: client,
		class:  class,
		log:    logger.WithComponent("search"),
	}
}

// Search walks the window tree below root and returns once every subtree has
// been explored. It must be called from the task holding the scheduler, and
// drains that task's ring: tasks spawned earlier run to completion too.
func (s *Searcher) Search(root xproto.Window) *Result {
	res := &Result{}
	sched := s.client.Scheduler()
	sched.Spawn(func() { s.visit(res, root) })
	res.Rounds = sched.Drain()

	s.log.Debug().
		Bool("found_any", res.FoundAny).
		Bool("found_visible", res.FoundVisible).
		Str("best", FormatID(res.Best)).
		Uint32("best_user_time", res.BestUserTime).
		Int("candidates", len(res.Candidates)).
		Msg("Window search finished")
	return res
}

// visit evaluates win if it is top-level and otherwise fans out one task per
// child, waiting for all of them before returning.
func (s *Searcher) visit(res *Result, win xproto.Window) {
	// ICCCM top-level windows carry WM_STATE (see also XmuClientWindow).
	wmState, err := s.client.Atom("WM_STATE")
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to intern WM_STATE")
		return
	}
	top, err := s.client.HasProperty(win, wmState)
	if err != nil {
		s.log.Debug().Str("window", FormatID(win)).Err(err).Msg("Skipping window")
		return
	}
	if top {
		s.consider(res, win)
		return
	}

	children, err := s.client.Children(win)
	if err != nil {
		s.log.Debug().Str("window", FormatID(win)).Err(err).Msg("Failed to query children")
		return
	}

	g := s.client.Scheduler().Group()
	for _, child := range children {
		g.Go(func() error {
			s.visit(res, child)
			return nil
		})
	}
	g.Wait()
}

func (s *Searcher) consider(res *Result, win xproto.Window) {
	log := s.log.With().Str("window", FormatID(win)).Logger()

	raw, ok, err := s.client.StringProperty(win, xproto.AtomWmClass)
	if err != nil || !ok {
		return
	}
	if instance, _ := ParseClass(raw); instance != s.class {
		return
	}
	res.FoundAny = true
	cand := Candidate{Window: win}

	visible, err := s.client.Viewable(win)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get map state")
		return
	}
	if !visible {
		res.Candidates = append(res.Candidates, cand)
		return
	}
	res.FoundVisible = true
	cand.Visible = true

	// TODO: follow _NET_WM_USER_TIME_WINDOW when the window delegates its
	// user time to a separate window.
	userTimeAtom, err := s.client.Atom("_NET_WM_USER_TIME")
	if err == nil {
		cand.UserTime, err = s.client.Card32Property(win, userTimeAtom)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read user time")
	}
	res.Candidates = append(res.Candidates, cand)

	log.Debug().Uint32("user_time", cand.UserTime).Msg("Visible candidate")
	res.consider(win, cand.UserTime)
}
