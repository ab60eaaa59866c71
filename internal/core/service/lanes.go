package service

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// lanes serializes work per call ID in arrival order. Each entrant waits for
// the channel of the one before it and closes its own on leave.
type lanes struct {
	mu    sync.Mutex
	lanes map[domain.CallID]*lane
}

type lane struct {
	tail chan struct{}
	refs int
}

func newLanes() *lanes {
	return &lanes{lanes: make(map[domain.CallID]*lane)}
}

func (l *lanes) enter(ctx context.Context, id domain.CallID) (func(), error) {
	l.mu.Lock()
	ln, ok := l.lanes[id]
	if !ok {
		ln = &lane{}
		l.lanes[id] = ln
	}
	prev := ln.tail
	mine := make(chan struct{})
	ln.tail = mine
	ln.refs++
	l.mu.Unlock()

	leave := func() {
		close(mine)
		l.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(l.lanes, id)
		}
		l.mu.Unlock()
	}

	if prev == nil {
		return leave, nil
	}
	select {
	case <-prev:
		return leave, nil
	case <-ctx.Done():
		// keep the chain intact for whoever queued behind us
		go func() {
			<-prev
			leave()
		}()
		return nil, ctx.Err()
	}
}

func (l *lanes) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
