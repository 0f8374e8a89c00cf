package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/worksite-pm/worksite/internal/shared"
)

const defaultLookupTimeout = 5 * time.Second

// Recorder observes cache effectiveness.
type Recorder interface {
	RoleCacheHit()
	RoleCacheMiss()
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithRecorder attaches cache hit/miss instrumentation.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithLookupTimeout bounds each membership query.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Resolver maps a principal to its role in the active company.
type Resolver struct {
	repo     Repository
	cache    Cache
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration
	group    singleflight.Group

	// mu orders cache writes against invalidations; gens counts the
	// invalidations seen per key.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewResolver constructs a Resolver. A nil cache falls back to a MemoryCache
// without expiry.
func NewResolver(repo Repository, cache Cache, opts ...Option) *Resolver {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	r := &Resolver{
		repo:    repo,
		cache:   cache,
		logger:  slog.Default(),
		timeout: defaultLookupTimeout,
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the principal's role. It fails with ErrNotFound when the
// principal has no membership and ErrBackendUnavailable when the lookup
// itself failed.
func (r *Resolver) Resolve(ctx context.Context, p shared.Principal) (string, error) {
	res, err := r.ResolveMembership(ctx, p)
	if err != nil {
		return "", err
	}
	return res.Role, nil
}

// ResolveMembership is Resolve returning the company the role belongs to.
func (r *Resolver) ResolveMembership(ctx context.Context, p shared.Principal) (Resolved, error) {
	if p.UserID == uuid.Nil {
		return Resolved{}, ErrNotFound
	}
	user, slot := p.UserID.String(), SlotFor(p.CompanyID)

	cached, ok, err := r.cache.Get(ctx, user, slot)
	if err != nil {
		r.logger.Warn("role cache get", slog.String("principal", user), slog.Any("error", err))
	}
	if ok && (p.CompanyID == uuid.Nil || cached.CompanyID == p.CompanyID) {
		r.hit()
		return cached, nil
	}
	r.miss()

	gen := r.generation(user)
	flight := user + "|" + slot + "|" + strconv.FormatUint(gen, 10)
	ch := r.group.DoChan(flight, func() (val any, err error) {
		// singleflight re-panics on its own goroutine, out of reach of any
		// caller's recover.
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("role lookup panic", slog.String("principal", user), slog.Any("panic", rec))
				val, err = Resolved{}, fmt.Errorf("%w: panic: %v", ErrBackendUnavailable, rec)
			}
		}()
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		m, err := r.repo.FindMembership(lookupCtx, p.UserID, p.CompanyID)
		if err != nil {
			return Resolved{}, classify(err)
		}
		res := Resolved{CompanyID: m.CompanyID, Role: m.Role}
		r.store(ctx, user, slot, gen, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return Resolved{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, ctx.Err())
	case out := <-ch:
		if out.Err != nil {
			return Resolved{}, out.Err
		}
		return out.Val.(Resolved), nil
	}
}

// Invalidate drops the cached roles of p's user in every company. The next
// Resolve queries the backend again, and lookups already in flight will not
// repopulate the cache.
func (r *Resolver) Invalidate(ctx context.Context, p shared.Principal) error {
	return r.InvalidateUser(ctx, p.UserID)
}

// InvalidateUser drops every cached company role of userID, for callers that
// change another user's membership.
func (r *Resolver) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	key := userID.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[key]++
	if err := r.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("roles: invalidate %s: %w", key, err)
	}
	return nil
}

func (r *Resolver) generation(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[key]
}

func (r *Resolver) store(ctx context.Context, user, slot string, gen uint64, res Resolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[user] != gen {
		return
	}
	if err := r.cache.Set(context.WithoutCancel(ctx), user, slot, res); err != nil {
		r.logger.Warn("role cache set", slog.String("principal", user), slog.Any("error", err))
	}
}

func (r *Resolver) hit() {
	if r.recorder != nil {
		r.recorder.RoleCacheHit()
	}
}

func (r *Resolver) miss() {
	if r.recorder != nil {
		r.recorder.RoleCacheMiss()
	}
}

func classify(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
