package sandbox

import (
	"context"
	"sync"
)

// projectLocks hands out one lock per project id. Entries are dropped when
// the last holder or waiter releases them.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	sem  chan struct{}
	refs int
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*projectLock)}
}

// Lock blocks until the project's lock is held or ctx is done. The returned
// function releases the lock.
func (p *projectLocks) Lock(ctx context.Context, projectID string) (func(), error) {
	p.mu.Lock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &projectLock{sem: make(chan struct{}, 1)}
		p.locks[projectID] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			p.release(projectID, l)
		}, nil
	case <-ctx.Done():
		p.release(projectID, l)
		return nil, ctx.Err()
	}
}

func (p *projectLocks) release(projectID string, l *projectLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, projectID)
	}
}

// size returns the number of tracked projects.
func (p *projectLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
