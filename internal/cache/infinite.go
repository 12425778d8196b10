package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// PageFetcher loads the page after cursor, an empty cursor meaning the first
// page. It returns the page items and the cursor of the following page.
type PageFetcher[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// Pages is a cursor-paginated query. Pages compose in cursor order, a page
// already loaded for a cursor is never fetched again, and an empty page ends
// the listing.
type Pages[T any] struct {
	c     *Coordinator
	key   Key
	fetch PageFetcher[T]

	mu       sync.Mutex
	gen      uint64
	pages    [][]T
	byCursor map[string]int
	next     string
	done     bool
}

// Infinite returns the paginated query registered under key, creating it on
// first use. Invalidating a prefix of key drops its loaded pages.
func Infinite[T any](c *Coordinator, key Key, fetch PageFetcher[T]) (*Pages[T], error) {
	id := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if inf, ok := c.infinite[id]; ok {
		p, ok := inf.pages.(*Pages[T])
		if !ok {
			return nil, fmt.Errorf("%s: registered pages have type %T", key.Op, inf.pages)
		}
		return p, nil
	}
	p := &Pages[T]{c: c, key: key, fetch: fetch, byCursor: make(map[string]int)}
	c.infinite[id] = infiniteEntry{key: key, pages: p}
	return p, nil
}

// FetchNextPage loads the page after the last loaded one and returns it.
// Once the listing ended it returns nil without fetching.
func (p *Pages[T]) FetchNextPage(ctx context.Context) ([]T, error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return nil, nil
	}
	cursor, gen := p.next, p.gen
	p.mu.Unlock()

	// Flights are keyed by generation so a reset never hands out a page
	// fetched before it.
	flightKey := fmt.Sprintf("%s\x1e%d\x1e%s", p.key, gen, cursor)
	ch := p.c.group.DoChan(flightKey, func() (any, error) {
		p.mu.Lock()
		if i, ok := p.byCursor[cursor]; ok && p.gen == gen {
			page := p.pages[i]
			p.mu.Unlock()
			return page, nil
		}
		p.mu.Unlock()

		p.c.mu.Lock()
		p.c.stats.Fetches++
		p.c.mu.Unlock()

		items, next, err := p.fetch(context.WithoutCancel(ctx), cursor)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gen != gen {
			return items, nil
		}
		if len(items) == 0 {
			p.done = true
			return items, nil
		}
		p.byCursor[cursor] = len(p.pages)
		p.pages = append(p.pages, items)
		p.next = next
		if next == "" {
			p.done = true
		}
		return items, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	}
}

// HasNextPage reports whether FetchNextPage may return more items.
func (p *Pages[T]) HasNextPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.done
}

// Pages returns the loaded pages in cursor order.
func (p *Pages[T]) Pages() [][]T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]T, len(p.pages))
	for i, page := range p.pages {
		out[i] = slices.Clone(page)
	}
	return out
}

// Items returns every loaded item, pages concatenated.
func (p *Pages[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Concat(p.pages...)
}

func (p *Pages[T]) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.pages = nil
	p.byCursor = make(map[string]int)
	p.next = ""
	p.done = false
}
