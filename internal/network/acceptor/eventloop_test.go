package acceptor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type EventLoopSuite struct {
	suite.Suite
}

func (s *EventLoopSuite) TestTasksRunInOrder() {
	loop := newEventLoop("test")
	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 100; i++ {
		i := i
		s.True(loop.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	s.NoError(loop.ShutdownGracefully(context.Background()))

	s.Len(order, 100)
	for i, v := range order {
		s.Equal(i, v)
	}
}

func (s *EventLoopSuite) TestPanicDoesNotStopLoop() {
	loop := newEventLoop("test")
	done := make(chan struct{})
	loop.Execute(func() { panic("boom") })
	loop.Execute(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("loop stopped after panic")
	}
	s.NoError(loop.ShutdownGracefully(context.Background()))
}

func (s *EventLoopSuite) TestShutdownDrainsAndRejects() {
	loop := newEventLoop("test")
	block := make(chan struct{})
	ran := 0
	loop.Execute(func() { <-block })
	for i := 0; i < 10; i++ {
		loop.Execute(func() { ran++ })
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(loop.ShutdownGracefully(ctx), context.DeadlineExceeded)
	s.False(loop.Execute(func() {}))

	close(block)
	s.NoError(loop.ShutdownGracefully(context.Background()))
	s.Equal(10, ran)
	s.Equal(0, loop.Pending())
}

func (s *EventLoopSuite) TestGroupPinning() {
	g := NewEventLoopGroup("worker", 2)
	defer g.ShutdownGracefully(context.Background())

	s.Equal(2, g.Len())
	s.Same(g.Next(1), g.Next(3))
	s.Same(g.Next(2), g.Next(4))
	s.NotSame(g.Next(1), g.Next(2))

	s.Equal(1, NewEventLoopGroup("single", 0).Len())
}

func TestEventLoop(t *testing.T) {
	suite.Run(t, new(EventLoopSuite))
}
