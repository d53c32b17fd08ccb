package chatsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FetchMode selects which page a fetch loads relative to the current one.
type FetchMode string

const (
	// FetchReset discards the collection and loads page 1.
	FetchReset FetchMode = "reset"
	// FetchForward loads the page after the current one.
	FetchForward FetchMode = "forward"
	// FetchBackward loads the page before the current one, unless it is
	// already loaded.
	FetchBackward FetchMode = "backward"
)

const (
	DefaultPageSize     = 20
	DefaultFetchTimeout = 15 * time.Second
)

// PageRequest is what a Feed asks its page source for.
type PageRequest struct {
	Page     int
	PageSize int
	Search   string
}

// PageFunc loads one page of records.
type PageFunc[T Keyed] func(ctx context.Context, req PageRequest) (*Page[T], error)

// FeedOptions configures a Feed.
type FeedOptions struct {
	// Name labels logs and metrics ("users", "groups", "messages").
	Name     string
	PageSize int
	// NewestFirst is set when the source pages newest-first. Each page is
	// then reversed before merging, forward pages merge at the head and
	// backward pages at the tail, keeping the collection oldest-first.
	NewestFirst bool
	// Timeout bounds a fetch whose context has no deadline.
	Timeout        time.Duration
	SearchDebounce time.Duration
	// Locker serializes the feed's state. Owners that mutate the store
	// directly pass their own lock here.
	Locker  sync.Locker
	Logger  zerolog.Logger
	Metrics *Metrics
	// OnChange runs after the collection changed, outside the lock.
	OnChange func()
	// OnError runs after a fetch failed, outside the lock.
	OnError func(error)
}

type pendingReset struct {
	ctx  context.Context
	done chan error
}

// Feed coordinates paged fetches of one list: it allows one fetch in flight,
// merges pages into a deduplicated Store, and keeps a Pager current.
type Feed[T Keyed] struct {
	fetch       PageFunc[T]
	name        string
	pageSize    int
	newestFirst bool
	timeout     time.Duration
	logger      zerolog.Logger
	metrics     *Metrics
	onChange    func()
	onError     func(error)
	debounce    *debouncer

	mu          sync.Locker
	store       *Store[T]
	pager       *Pager
	search      string
	inFlight    bool
	loading     bool
	loadingMore bool
	generation  uint64
	pending     *pendingReset
	closed      bool
}

// NewFeed creates a feed over store. store may be nil.
func NewFeed[T Keyed](store *Store[T], fetch PageFunc[T], opts FeedOptions) *Feed[T] {
	if store == nil {
		store = NewStore[T]()
	}
	f := &Feed[T]{
		fetch:       fetch,
		name:        opts.Name,
		pageSize:    opts.PageSize,
		newestFirst: opts.NewestFirst,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		onChange:    opts.OnChange,
		onError:     opts.OnError,
		mu:          opts.Locker,
		store:       store,
		pager:       NewPager(),
	}
	if f.name == "" {
		f.name = "list"
	}
	if f.pageSize == 0 {
		f.pageSize = DefaultPageSize
	}
	if f.timeout == 0 {
		f.timeout = DefaultFetchTimeout
	}
	if f.mu == nil {
		f.mu = &sync.Mutex{}
	}
	delay := opts.SearchDebounce
	if delay == 0 {
		delay = DefaultSearchDebounce
	}
	f.debounce = newDebouncer(delay)
	f.logger = f.logger.With().Str("list", f.name).Logger()
	return f
}

// FetchPage loads the page selected by mode and merges it.
//
// A forward or backward fetch issued while another fetch is in flight
// returns ErrFetchInFlight without touching state. A reset issued while a
// fetch is in flight supersedes it: the in-flight result is discarded and
// the reset runs once it settles. Forward fetches past the last page and
// backward fetches of an already loaded page are no-ops.
func (f *Feed[T]) FetchPage(ctx context.Context, mode FetchMode) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.inFlight {
		if mode != FetchReset {
			f.mu.Unlock()
			f.metrics.fetch(f.name, mode, "dropped")
			return ErrFetchInFlight
		}
		f.generation++
		if f.pending != nil {
			f.pending.done <- ErrStale
		}
		p := &pendingReset{ctx: ctx, done: make(chan error, 1)}
		f.pending = p
		f.mu.Unlock()

		select {
		case err := <-p.done:
			return err
		case <-ctx.Done():
			f.mu.Lock()
			if f.pending == p {
				f.pending = nil
			}
			f.mu.Unlock()
			return ctx.Err()
		}
	}

	page, ok := f.beginLocked(mode)
	gen, search := f.generation, f.search
	f.mu.Unlock()
	if !ok {
		return nil
	}
	if mode == FetchReset {
		f.changed()
	}
	return f.run(ctx, mode, page, gen, search)
}

// beginLocked claims the in-flight slot and picks the page to load.
func (f *Feed[T]) beginLocked(mode FetchMode) (int, bool) {
	var page int
	switch mode {
	case FetchReset:
		f.generation++
		f.store.Clear()
		f.pager.Reset()
		f.loading = true
		page = 1
	case FetchForward:
		if !f.pager.HasMore() {
			return 0, false
		}
		page = f.pager.State().CurrentPage + 1
		f.loadingMore = true
	case FetchBackward:
		if !f.pager.HasPrevious() {
			return 0, false
		}
		page = f.pager.State().CurrentPage - 1
		if page < 1 || f.pager.IsPageLoaded(page) {
			f.metrics.fetch(f.name, mode, "skipped")
			return 0, false
		}
		f.loadingMore = true
	default:
		return 0, false
	}
	f.inFlight = true
	return page, true
}

func (f *Feed[T]) run(ctx context.Context, mode FetchMode, page int, gen uint64, search string) error {
	fctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.fetch(fctx, PageRequest{Page: page, PageSize: f.pageSize, Search: search})

	f.mu.Lock()
	f.inFlight = false
	f.loading = false
	f.loadingMore = false
	stale := gen != f.generation
	if !stale {
		if err != nil {
			f.pager.Exhaust()
		} else {
			f.applyLocked(mode, page, resp)
		}
	}
	next := f.pending
	f.pending = nil
	var nextPage int
	var nextGen uint64
	var nextSearch string
	if next != nil {
		if f.closed {
			next.done <- ErrClosed
			next = nil
		} else if err := next.ctx.Err(); err != nil {
			next.done <- err
			next = nil
		} else {
			nextPage, _ = f.beginLocked(FetchReset)
			nextGen, nextSearch = f.generation, f.search
		}
	}
	f.mu.Unlock()

	if next != nil {
		go func() {
			next.done <- f.run(next.ctx, FetchReset, nextPage, nextGen, nextSearch)
		}()
	}

	switch {
	case stale:
		f.metrics.fetch(f.name, mode, "stale")
		f.logger.Debug().Int("page", page).Str("mode", string(mode)).Msg("discarding stale page")
		return ErrStale
	case err != nil:
		f.metrics.fetch(f.name, mode, "error")
		f.logger.Error().Err(err).Int("page", page).Str("mode", string(mode)).Msg("failed to load page")
		f.changed()
		if f.onError != nil {
			f.onError(err)
		}
		return err
	}
	f.metrics.fetch(f.name, mode, "ok")
	f.changed()
	return nil
}

func (f *Feed[T]) applyLocked(mode FetchMode, page int, resp *Page[T]) {
	items := resp.Data
	if f.newestFirst {
		items = reversed(items)
	}
	switch mode {
	case FetchReset:
		f.store.Reset(items)
	case FetchForward:
		if f.newestFirst {
			f.store.Prepend(items...)
		} else {
			f.store.Append(items...)
		}
	case FetchBackward:
		if f.newestFirst {
			f.store.Append(items...)
		} else {
			f.store.Prepend(items...)
		}
	}

	p := resp.Pagination
	current := p.CurrentPage
	if current == 0 {
		current = page
	}
	total := p.TotalPages
	if total == 0 && p.TotalRecords > 0 {
		total = (p.TotalRecords + f.pageSize - 1) / f.pageSize
	}
	f.pager.Update(current, total, p.TotalRecords)
	f.pager.MarkPageLoaded(page)
}

func (f *Feed[T]) changed() {
	if f.onChange != nil {
		f.onChange()
	}
}

// Search sets the search term and schedules a reset fetch after the
// debounce period. A newer call cancels the pending one.
func (f *Feed[T]) Search(term string) {
	f.debounce.Trigger(func() {
		f.SetSearch(term)
		err := f.FetchPage(context.Background(), FetchReset)
		if err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed) {
			f.logger.Debug().Err(err).Str("search", term).Msg("search fetch failed")
		}
	})
}

// SetSearch sets the term used by subsequent fetches without fetching.
func (f *Feed[T]) SetSearch(term string) {
	f.mu.Lock()
	f.search = term
	f.mu.Unlock()
}

// SearchTerm returns the current search term.
func (f *Feed[T]) SearchTerm() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.search
}

// Items returns a copy of the collection.
func (f *Feed[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.Items()
}

// State returns the paging state.
func (f *Feed[T]) State() PageState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pager.State()
}

// LoadedPages returns the pages merged since the last reset.
func (f *Feed[T]) LoadedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pager.LoadedPages()
}

// Loading reports whether a reset fetch (loading) or a forward/backward
// fetch (loadingMore) is in flight.
func (f *Feed[T]) Loading() (loading, loadingMore bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading, f.loadingMore
}

// Close invalidates any in-flight fetch and rejects further fetches.
func (f *Feed[T]) Close() {
	f.debounce.Stop()
	f.mu.Lock()
	f.closed = true
	f.generation++
	if f.pending != nil && !f.inFlight {
		f.pending.done <- ErrClosed
		f.pending = nil
	}
	f.mu.Unlock()
}

// seed fills an empty, idle collection without touching the pager. Used to
// show cached data until the first page lands.
func (f *Feed[T]) seed(items []T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.store.Len() > 0 {
		return false
	}
	f.store.Reset(items)
	return f.store.Len() > 0
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
