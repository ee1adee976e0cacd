package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Pool holds one Orchestrator per dashboard client, the way each browser
// tab owns its own form. Members share the sender and catalog loader.
type Pool struct {
	factory func(id string) *Orchestrator

	mu      sync.Mutex
	members map[string]*Orchestrator
	closed  sync.WaitGroup
}

// NewPool builds members with New(sender, loader, opts..., WithID(id)).
func NewPool(sender Sender, loader WaypointLoader, opts ...Option) *Pool {
	return &Pool{
		factory: func(id string) *Orchestrator {
			return New(sender, loader, append(append([]Option(nil), opts...), WithID(id))...)
		},
		members: map[string]*Orchestrator{},
	}
}

// Open creates and initializes a new member with a random id.
func (p *Pool) Open(ctx context.Context) *Orchestrator {
	o := p.factory(uuid.New().String())
	o.Init(ctx)
	p.mu.Lock()
	p.members[o.ID()] = o
	p.mu.Unlock()
	return o
}

func (p *Pool) Get(id string) (*Orchestrator, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.members[id]
	return o, ok
}

// Close abandons the member's pending work and forgets it. A response that
// arrives later is discarded by the generation guard.
func (p *Pool) Close(id string) bool {
	p.mu.Lock()
	o, ok := p.members[id]
	delete(p.members, id)
	p.mu.Unlock()
	if ok {
		o.Abandon()
		p.closed.Add(1)
		go func() {
			defer p.closed.Done()
			o.Wait()
		}()
	}
	return ok
}

// Wait blocks until every background call of current and closed members
// has settled, or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	members := make([]*Orchestrator, 0, len(p.members))
	for _, o := range p.members {
		members = append(members, o)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, o := range members {
			o.Wait()
		}
		p.closed.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}
