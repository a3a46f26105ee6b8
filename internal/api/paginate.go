package api

import (
	"context"
	"errors"
	"net/url"
)

// ErrNoMorePages is returned by Pager.Next once the listing is exhausted.
var ErrNoMorePages = errors.New("no more pages")

// Cursor points past the last item of a previously fetched page. Both fields
// must be present together; an incomplete pair is ignored because the backend
// requires both or neither.
type Cursor struct {
	LastCreatedAt string `json:"lastCreatedAt"`
	LastKey       string `json:"lastKey"`
}

func (c *Cursor) Valid() bool {
	return c != nil && c.LastCreatedAt != "" && c.LastKey != ""
}

func (c *Cursor) apply(q url.Values) {
	if !c.Valid() {
		return
	}
	q.Set("lastCreatedAt", c.LastCreatedAt)
	q.Set("lastKey", c.LastKey)
}

// Page is one slice of a cursor-paginated listing. Next is derived from the
// last item actually returned. More is the sole exhaustion signal: a page
// whose item count equals the requested limit still ends the listing when
// More is false.
type Page[T any] struct {
	Items []T
	More  bool
	Next  *Cursor
}

// FetchFunc fetches one page. A nil cursor requests the first page.
type FetchFunc[T any] func(ctx context.Context, limit int, cursor *Cursor) (Page[T], error)

// Pager walks a cursor-paginated listing page by page. It is not safe for
// concurrent use; each call site owns its own Pager.
type Pager[T any] struct {
	fetch  FetchFunc[T]
	limit  int
	cursor *Cursor
	done   bool
}

func NewPager[T any](limit int, fetch FetchFunc[T]) *Pager[T] {
	if limit <= 0 {
		limit = 10
	}
	return &Pager[T]{fetch: fetch, limit: limit}
}

func (p *Pager[T]) HasNext() bool {
	return !p.done
}

func (p *Pager[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, ErrNoMorePages
	}
	page, err := p.fetch(ctx, p.limit, p.cursor)
	if err != nil {
		return nil, err
	}
	if !page.More || !page.Next.Valid() {
		p.done = true
	}
	p.cursor = page.Next
	return page.Items, nil
}
