package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry holds the set of adapters built at startup and a round-robin
// cursor used to spread new uploads across providers. The adapter list is
// read-only after construction; the cursor is the only mutable state and
// is guarded by a mutex.
type Registry struct {
	adapters []Adapter
	byTag    map[Provider]Adapter
	log      zerolog.Logger

	mu     sync.Mutex
	cursor int
}

// NewRegistry builds a registry over the given adapters, preserving their
// order for cursor advancement. At least one adapter is required; duplicate
// provider tags are rejected.
func NewRegistry(logger zerolog.Logger, adapters ...Adapter) (*Registry, error) {
	if len(adapters) == 0 {
		return nil, NewError(KindValidationFailed, "no storage providers configured")
	}
	byTag := make(map[Provider]Adapter, len(adapters))
	for _, a := range adapters {
		if _, dup := byTag[a.Provider()]; dup {
			return nil, Errorf(KindValidationFailed, "storage provider %q configured twice", a.Provider())
		}
		byTag[a.Provider()] = a
	}
	return &Registry{adapters: adapters, byTag: byTag, log: logger}, nil
}

// Next returns the adapter at the cursor and advances the cursor by one,
// atomically with respect to concurrent callers. Two uploads issued at the
// same instant observe two different, sequential cursor values.
func (r *Registry) Next() Adapter {
	r.mu.Lock()
	a := r.adapters[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.adapters)
	r.mu.Unlock()
	return a
}

// ByTag resolves the adapter bound to a provider tag. Deletes and
// downloads dispatch through here; there is no cross-provider fallback.
func (r *Registry) ByTag(p Provider) (Adapter, bool) {
	a, ok := r.byTag[p]
	return a, ok
}

// Len returns the number of configured adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}

// Providers returns the configured tags in cursor order.
func (r *Registry) Providers() []Provider {
	tags := make([]Provider, len(r.adapters))
	for i, a := range r.adapters {
		tags[i] = a.Provider()
	}
	return tags
}

// Upload stores in.Body on the next provider in round-robin order,
// failing over to each remaining adapter in turn. Every attempt consumes
// one cursor position whether or not it succeeds, so selection stays
// balanced over time even after failures. When all adapters fail, the
// returned error has kind UploadFailed and wraps the last adapter's error.
//
// perCallTimeout bounds each individual provider call; zero means the
// caller's context deadline alone applies.
func (r *Registry) Upload(ctx context.Context, in UploadInput, perCallTimeout time.Duration) (Provider, *UploadResult, error) {
	if len(in.Body) == 0 {
		return "", nil, NewError(KindValidationFailed, "upload body must not be empty")
	}

	var lastErr error
	for attempt := 0; attempt < len(r.adapters); attempt++ {
		a := r.Next()

		callCtx, cancel := r.callContext(ctx, perCallTimeout)
		res, err := a.Upload(callCtx, in)
		cancel()

		if err == nil {
			return a.Provider(), res, nil
		}
		lastErr = err
		r.log.Warn().
			Str("provider", string(a.Provider())).
			Int("attempt", attempt+1).
			Int("adapters", len(r.adapters)).
			Err(err).
			Msg("upload attempt failed, trying next provider")
	}

	return "", nil, WrapError(KindUploadFailed, "upload failed on every configured provider", lastErr)
}

func (r *Registry) callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
