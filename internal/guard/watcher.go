package guard

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sitecms/sitecms/internal/session"
)

// Source publishes session state changes. *session.Provider implements it.
type Source interface {
	Subscribe() (<-chan session.Snapshot, func())
}

// Navigator performs a redirect
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }

// Watcher keeps a route's decision current for a long-lived view
type Watcher struct {
	policy Policy
	nav    Navigator
	log    zerolog.Logger

	paths  chan string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	decision Decision
	closed   bool
}

// Watch starts watching src for the view at path. The watcher stops when
// ctx is canceled or Close is called; after that it never navigates.
func Watch(ctx context.Context, src Source, policy Policy, path string, nav Navigator, log zerolog.Logger) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		policy:   policy.withDefaults(),
		nav:      nav,
		log:      log,
		paths:    make(chan string, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
		decision: Decision{State: Pending},
	}

	updates, unsubscribe := src.Subscribe()
	go w.run(ctx, updates, unsubscribe, path)
	return w
}

func (w *Watcher) run(ctx context.Context, updates <-chan session.Snapshot, unsubscribe func(), path string) {
	defer close(w.done)
	defer unsubscribe()

	var (
		snap       = session.Snapshot{Loading: true}
		redirected string
	)

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			snap = s
		case p := <-w.paths:
			path = p
		}

		// select picks randomly among ready cases, so an update can win over a
		// cancellation that already happened
		if ctx.Err() != nil {
			return
		}

		d := Evaluate(w.policy, snap, path)
		if !w.apply(ctx, d, &redirected) {
			return
		}
	}
}

// apply records d and navigates when it is a new denial. The navigation
// happens under w.mu so Close cannot return while one is in flight; the
// navigator must not call back into the watcher.
func (w *Watcher) apply(ctx context.Context, d Decision, redirected *string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || ctx.Err() != nil {
		return false
	}
	w.decision = d

	if d.State != Denied {
		*redirected = ""
		return true
	}
	if d.Redirect == *redirected {
		return true
	}
	*redirected = d.Redirect

	w.log.Debug().Str("redirect", d.Redirect).Msg("Route denied")
	w.nav.Navigate(d.Redirect)
	return true
}

// SetPath reports that the view moved to path
func (w *Watcher) SetPath(path string) {
	for {
		select {
		case w.paths <- path:
			return
		case <-w.done:
			return
		default:
			// replace a path the loop has not picked up yet
			select {
			case <-w.paths:
			default:
			}
		}
	}
}

// Decision returns the latest decision
func (w *Watcher) Decision() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decision
}

// Done is closed when the watcher has stopped
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close stops the watcher and waits for it to exit
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	<-w.done
}
