package chatsync

import "sort"

// PageState is a snapshot of a list's paging position.
type PageState struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalRecords int  `json:"totalRecords"`
	HasMore      bool `json:"hasMore"`
	HasPrevious  bool `json:"hasPrevious"`
}

// Pager tracks the loaded page range of one list and whether more pages are
// available on either side. It holds no lock; the owning Feed serializes
// access.
type Pager struct {
	state  PageState
	loaded map[int]struct{}
}

// NewPager returns a pager in its reset state.
func NewPager() *Pager {
	p := &Pager{}
	p.Reset()
	return p
}

// Reset forgets all loaded pages except page 1 and marks the list as having
// more data forward and none backward. Totals become unknown.
func (p *Pager) Reset() {
	p.state = PageState{CurrentPage: 1, HasMore: true}
	p.loaded = map[int]struct{}{1: {}}
}

// HasMore reports whether a page after the current one is available.
func (p *Pager) HasMore() bool { return p.state.HasMore }

// HasPrevious reports whether a page before the current one is available.
func (p *Pager) HasPrevious() bool { return p.state.HasPrevious }

func (p *Pager) MarkPageLoaded(page int) { p.loaded[page] = struct{}{} }

func (p *Pager) IsPageLoaded(page int) bool {
	_, ok := p.loaded[page]
	return ok
}

// LoadedPages returns the loaded page numbers in ascending order.
func (p *Pager) LoadedPages() []int {
	pages := make([]int, 0, len(p.loaded))
	for n := range p.loaded {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages
}

// Update applies the paging block of a response.
func (p *Pager) Update(current, totalPages, totalRecords int) {
	if current < 1 {
		current = 1
	}
	p.state.CurrentPage = current
	p.state.TotalPages = totalPages
	p.state.TotalRecords = totalRecords
	p.state.HasMore = current < totalPages
	p.state.HasPrevious = current > 1
}

// Exhaust marks the list as having no more data in either direction.
func (p *Pager) Exhaust() {
	p.state.HasMore = false
	p.state.HasPrevious = false
}

// State returns a copy of the current paging state.
func (p *Pager) State() PageState { return p.state }
