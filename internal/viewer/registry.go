package viewer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry is a thread-safe in-memory set of open views with TTL eviction.
type Registry struct {
	mu      sync.Mutex
	views   map[string]*View
	ttl     time.Duration
	log     *slog.Logger
	onEvict func(id string)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(ttl time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		views: make(map[string]*View),
		ttl:   ttl,
		log:   log,
	}
}

// OnEvict registers fn to be called with the id of every view removed by
// Cleanup. It runs outside the registry lock.
func (r *Registry) OnEvict(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = fn
}

func (r *Registry) Put(v *View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[v.ID()] = v
}

// PutIfAbsent stores v unless a view with the same id is already open, and
// reports whether it was stored.
func (r *Registry) PutIfAbsent(v *View) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[v.ID()]; ok {
		return false
	}
	r.views[v.ID()] = v
	return true
}

func (r *Registry) Get(id string) *View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[id]
}

// Lookup is Get returning a *NotFoundError for unknown ids. A found view
// is touched so that it is not evicted while in use.
func (r *Registry) Lookup(id string) (*View, error) {
	if v := r.Get(id); v != nil {
		v.Touch()
		return v, nil
	}
	return nil, notFound("document", id)
}

// Delete removes a view and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.views[id]
	delete(r.views, id)
	return ok
}

// List returns summaries of every open view, newest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	views := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(views))
	for _, v := range views {
		out = append(out, v.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Cleanup removes views idle for longer than the TTL.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	now := time.Now()
	var evicted []string
	for id, v := range r.views {
		if now.Sub(v.LastUsed()) > r.ttl {
			delete(r.views, id)
			evicted = append(evicted, id)
		}
	}
	onEvict := r.onEvict
	r.mu.Unlock()

	if onEvict != nil {
		for _, id := range evicted {
			onEvict(id)
		}
	}
	return len(evicted)
}

// Start launches the periodic cleanup loop.
func (r *Registry) Start(ctx context.Context, every time.Duration) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if n := r.Cleanup(); n > 0 {
					r.log.Info("evicted idle views", "count", n)
				}
			}
		}
	}()
}

// Stop ends the cleanup loop.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
