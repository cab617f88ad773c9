package app

import (
	"sync"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// Feed fans aggregation results out to subscribers. Slow subscribers miss intermediate results.
type Feed struct {
	mu     sync.Mutex
	subs   map[chan *domain.AggregationResult]struct{}
	latest *domain.AggregationResult
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan *domain.AggregationResult]struct{})}
}

// Subscribe returns a channel primed with the latest result, if any, and a cancel func.
func (f *Feed) Subscribe() (<-chan *domain.AggregationResult, func()) {
	ch := make(chan *domain.AggregationResult, 1)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	if f.latest != nil {
		ch <- f.latest
	}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		})
	}
}

func (f *Feed) Publish(result *domain.AggregationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = result
	for ch := range f.subs {
		select {
		case ch <- result:
		default:
			// replace the stale pending result
			select {
			case <-ch:
			default:
			}
			ch <- result
		}
	}
}

// Latest returns the most recent result or nil.
func (f *Feed) Latest() *domain.AggregationResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.latest
}
