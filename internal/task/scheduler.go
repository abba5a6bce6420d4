// Package task multiplexes cooperative tasks over a single logical thread of
// control so that X11 requests can be pipelined: a task sends a request,
// yields, and reads the reply once every other runnable task had its turn.
//
// Each task runs on its own goroutine, but exactly one of them holds the
// scheduler at any instant. Control only moves in Yield or when a task's entry
// function returns, so state shared between tasks needs no locking.
package task

// Task is one resumable context in a scheduler ring.
type Task struct {
	next, prev *Task

	// wake hands the scheduler to this task.
	wake  chan struct{}
	entry func()
	dead  bool
}

// Scheduler owns the task ring. The goroutine that calls New becomes the main
// task; every method must be called from the task currently holding the
// scheduler.
type Scheduler struct {
	main Task
	cur  *Task
}

// New returns a scheduler whose ring holds only the calling goroutine.
func New() *Scheduler {
	s := &Scheduler{}
	s.main.wake = make(chan struct{})
	s.main.next = &s.main
	s.main.prev = &s.main
	s.cur = &s.main
	return s
}

// Spawn creates a task running entry and runs it before returning, until it
// either yields for the first time or returns. Requests issued by tasks
// spawned in sequence therefore go out in spawn order.
//
// The new task, together with any task it spawned meanwhile, is linked
// directly in front of the caller, so siblings resume in spawn order once the
// caller yields.
func (s *Scheduler) Spawn(entry func()) {
	t := &Task{
		wake:  make(chan struct{}),
		entry: entry,
	}
	go s.trampoline(t)

	// Run the child in a ring of just the two of us.
	cur := s.cur
	prev, next := cur.prev, cur.next
	cur.next, cur.prev = t, t
	t.next, t.prev = cur, cur
	s.yield()

	// Splice that ring back between prev and us.
	first, last := cur.next, cur.prev
	if first == cur {
		cur.next, cur.prev = next, prev
		return
	}
	cur.next = next
	next.prev = cur
	prev.next = first
	first.prev = prev
	last.next = cur
	cur.prev = last
}

// Yield lets every other task in the caller's ring run once. It returns
// without switching when no other task is runnable.
func (s *Scheduler) Yield() {
	s.yield()
}

// Drain yields until the caller is the only task left in its ring and
// reports how many scheduling rounds that took.
func (s *Scheduler) Drain() int {
	rounds := 0
	for s.yield() {
		rounds++
	}
	return rounds
}

// Len reports the number of tasks in the caller's ring, dead ones included.
func (s *Scheduler) Len() int {
	n := 1
	for t := s.cur.next; t != s.cur; t = t.next {
		n++
	}
	return n
}

// yield reaps, rotates and parks. It reports whether it switched away.
func (s *Scheduler) yield() bool {
	cur := s.cur
	s.reap()
	if cur.next == cur {
		return false
	}
	s.switchTo(cur.next)
	<-cur.wake
	return true
}

// reap unlinks every dead task directly following the current one. A dead
// task is only ever removed by its predecessor, which is also the only task
// that could switch into it.
func (s *Scheduler) reap() {
	cur := s.cur
	for cur.next.dead {
		dead := cur.next
		dead.next.prev = dead.prev
		dead.prev.next = dead.next
		dead.next, dead.prev = nil, nil
	}
}

func (s *Scheduler) switchTo(t *Task) {
	if t.dead {
		panic("task: switching into a dead task")
	}
	s.cur = t
	t.wake <- struct{}{}
}

// trampoline runs a task's entry function and then hands the scheduler on for
// good. The dead task stays linked until its predecessor reaps it.
func (s *Scheduler) trampoline(t *Task) {
	<-t.wake
	t.entry()

	t.dead = true
	s.reap()
	if t.next == t {
		panic("task: dead task left alone in its ring")
	}
	s.switchTo(t.next)
}
