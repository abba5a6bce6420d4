package task

// Group is a join barrier over tasks spawned through it. It follows the
// shape of errgroup: Go submits, Wait joins and reports the first error.
type Group struct {
	s       *Scheduler
	pending int
	err     error
}

// Group returns an empty barrier bound to s.
func (s *Scheduler) Group() *Group {
	return &Group{s: s}
}

// Go spawns fn as a task. Like Spawn, fn runs until its first yield before Go
// returns.
func (g *Group) Go(fn func() error) {
	g.pending++
	g.s.Spawn(func() {
		if err := fn(); err != nil && g.err == nil {
			g.err = err
		}
		g.pending--
	})
}

// Wait yields until every task submitted with Go has returned, then reports
// the first non-nil error any of them returned.
func (g *Group) Wait() error {
	for g.pending > 0 {
		if !g.s.yield() {
			panic("task: group waiting with no runnable tasks")
		}
	}
	return g.err
}
