package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpawnRunsUntilFirstYield(t *testing.T) {
	s := New()
	var trace []string

	s.Spawn(func() {
		trace = append(trace, "child:start")
		s.Yield()
		trace = append(trace, "child:resumed")
	})
	trace = append(trace, "parent:after-spawn")

	require.Equal(t, []string{"child:start", "parent:after-spawn"}, trace)
	require.Equal(t, 2, s.Len())

	s.Drain()
	require.Equal(t, []string{"child:start", "parent:after-spawn", "child:resumed"}, trace)
}

func TestSiblingsResumeInSpawnOrder(t *testing.T) {
	s := New()
	var trace []string

	for _, name := range []string{"a", "b", "c"} {
		s.Spawn(func() {
			trace = append(trace, name+"1")
			s.Yield()
			trace = append(trace, name+"2")
			s.Yield()
			trace = append(trace, name+"3")
		})
	}

	require.Equal(t, []string{"a1", "b1", "c1"}, trace)
	require.Equal(t, 4, s.Len())

	rounds := s.Drain()
	require.Equal(t, []string{"a1", "b1", "c1", "a2", "b2", "c2", "a3", "b3", "c3"}, trace)
	require.Equal(t, 2, rounds)
	require.Equal(t, 1, s.Len())
}

func TestYieldAloneDoesNotSwitch(t *testing.T) {
	s := New()
	require.False(t, s.yield())

	for i := 0; i < 5; i++ {
		s.Spawn(func() { s.Yield() })
	}
	s.Drain()

	require.Equal(t, 1, s.Len())
	require.False(t, s.yield())
}

func TestDeadTaskIsReapedNotResumed(t *testing.T) {
	s := New()
	runs := 0

	s.Spawn(func() { runs++ })

	// The finished task stays linked until its predecessor looks at it.
	require.Equal(t, 2, s.Len())
	require.True(t, s.main.next.dead)

	s.Yield()
	require.Equal(t, 1, s.Len())
	require.Equal(t, 1, runs)
}

func TestDeadTasksBetweenLiveOnesAreSkipped(t *testing.T) {
	s := New()
	var trace []string

	s.Spawn(func() {
		trace = append(trace, "live1")
		s.Yield()
		trace = append(trace, "live2")
	})
	s.Spawn(func() { trace = append(trace, "short") })
	s.Spawn(func() {
		trace = append(trace, "tail1")
		s.Yield()
		trace = append(trace, "tail2")
	})

	s.Drain()
	require.Equal(t, []string{"live1", "short", "tail1", "live2", "tail2"}, trace)
	require.Equal(t, 1, s.Len())
}

func TestNestedSpawnBeforeFirstYield(t *testing.T) {
	s := New()
	var trace []string

	s.Spawn(func() {
		trace = append(trace, "p1")
		s.Spawn(func() {
			trace = append(trace, "q1")
			s.Yield()
			trace = append(trace, "q2")
		})
		s.Spawn(func() {
			trace = append(trace, "r1")
			s.Yield()
			trace = append(trace, "r2")
		})
		trace = append(trace, "p2")
		s.Yield()
		trace = append(trace, "p3")
	})

	// p, q and r all spawned before p first yielded; the splice must keep
	// every one of them in the main ring.
	require.Equal(t, 4, s.Len())

	s.Drain()
	require.Equal(t, []string{"p1", "q1", "r1", "p2", "q2", "r2", "p3"}, trace)
	require.Equal(t, 1, s.Len())
}

func TestSpawnFromTaskAfterYield(t *testing.T) {
	s := New()
	var trace []string

	s.Spawn(func() {
		s.Yield()
		s.Spawn(func() {
			trace = append(trace, "child1")
			s.Yield()
			trace = append(trace, "child2")
		})
		trace = append(trace, "parent")
	})
	s.Spawn(func() {
		s.Yield()
		trace = append(trace, "sibling")
	})

	s.Drain()
	require.Equal(t, []string{"child1", "parent", "sibling", "child2"}, trace)
}

func TestGroupWaitJoinsAllTasks(t *testing.T) {
	s := New()
	g := s.Group()
	done := 0

	for i := 0; i < 10; i++ {
		g.Go(func() error {
			s.Yield()
			s.Yield()
			done++
			return nil
		})
	}

	require.NoError(t, g.Wait())
	require.Equal(t, 10, done)
	// Finished tasks stay linked until the caller yields again.
	s.Drain()
	require.Equal(t, 1, s.Len())
}

func TestGroupWaitReturnsFirstError(t *testing.T) {
	s := New()
	g := s.Group()
	first := errors.New("first")

	g.Go(func() error {
		s.Yield()
		return first
	})
	g.Go(func() error {
		s.Yield()
		s.Yield()
		return errors.New("second")
	})
	g.Go(func() error { return nil })

	require.ErrorIs(t, g.Wait(), first)
}

func TestGroupInsideTask(t *testing.T) {
	s := New()
	var leaves []int

	var walk func(depth, id int)
	walk = func(depth, id int) {
		s.Yield()
		if depth == 0 {
			leaves = append(leaves, id)
			return
		}
		g := s.Group()
		for i := 0; i < 3; i++ {
			child := id*3 + i
			g.Go(func() error {
				walk(depth-1, child)
				return nil
			})
		}
		require.NoError(t, g.Wait())
	}

	walk(3, 0)
	require.Len(t, leaves, 27)
	s.Drain()
	require.Equal(t, 1, s.Len())
}
