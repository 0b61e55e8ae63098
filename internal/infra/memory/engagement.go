package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LikeCounter fetches in-window like counts from a backing store (Postgres,
// Redis, etc).
type LikeCounter interface {
	CountInWindow(ctx context.Context, postID string, from, to time.Time) (int, error)
}

// CachedEngagementReader caches like counts with TTL to avoid hammering the
// engagement store during leaderboard reads. Only counts for closed windows
// are cached: a window still collecting likes must always be recounted.
type CachedEngagementReader struct {
	counter LikeCounter
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rnd     *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedCount
}

type cachedCount struct {
	count     int
	expiresAt time.Time
}

func NewCachedEngagementReader(counter LikeCounter, ttl time.Duration) *CachedEngagementReader {
	return &CachedEngagementReader{
		counter: counter,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedCount),
	}
}

func (r *CachedEngagementReader) CountInWindow(ctx context.Context, postID string, from, to time.Time) (int, error) {
	now := r.clock()
	if now.Before(to) {
		// Window still open: the count is not final, go straight through.
		return r.counter.CountInWindow(ctx, postID, from, to)
	}

	key := fmt.Sprintf("%s|%d|%d", postID, from.UnixMilli(), to.UnixMilli())

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.count, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.count, nil
		}
		r.mu.RUnlock()

		count, err := r.counter.CountInWindow(ctx, postID, from, to)
		if err != nil {
			return 0, err
		}

		r.mu.Lock()
		r.cache[key] = cachedCount{count: count, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (r *CachedEngagementReader) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticEngagementReader counts likes from an in-memory event list (tests and
// demos). Windows are half-open: [from, to).
type StaticEngagementReader struct {
	mu    sync.RWMutex
	likes map[string][]time.Time
}

func NewStaticEngagementReader() *StaticEngagementReader {
	return &StaticEngagementReader{likes: make(map[string][]time.Time)}
}

// AddLikes records like events for a post.
func (r *StaticEngagementReader) AddLikes(postID string, at ...time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.likes[postID] = append(r.likes[postID], at...)
}

func (r *StaticEngagementReader) CountInWindow(_ context.Context, postID string, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, t := range r.likes[postID] {
		if !t.Before(from) && t.Before(to) {
			count++
		}
	}
	return count, nil
}
