package syncer

import (
	"container/list"

	"github.com/acormier/vireo/internal/domain"
)

// pageCache is a small LRU of rendered pages keyed by page number, so
// flipping back and forth does not reread the store. Not goroutine
// safe; the coordinator's lock guards it.
type pageCache struct {
	cap   int
	order *list.List // front = most recently used
	items map[int]*list.Element
}

type cacheEntry struct {
	number int
	page   domain.Page
}

func newPageCache(cap int) *pageCache {
	return &pageCache{
		cap:   cap,
		order: list.New(),
		items: make(map[int]*list.Element, cap),
	}
}

// Get returns the cached page and marks it most recently used
func (pc *pageCache) Get(number int) (domain.Page, bool) {
	el, ok := pc.items[number]
	if !ok {
		return domain.Page{}, false
	}
	pc.order.MoveToFront(el)
	return el.Value.(*cacheEntry).page, true
}

// Put stores a page, evicting the least recently used entry when full
func (pc *pageCache) Put(number int, page domain.Page) {
	if el, ok := pc.items[number]; ok {
		el.Value.(*cacheEntry).page = page
		pc.order.MoveToFront(el)
		return
	}
	if pc.order.Len() >= pc.cap {
		oldest := pc.order.Back()
		if oldest != nil {
			pc.order.Remove(oldest)
			delete(pc.items, oldest.Value.(*cacheEntry).number)
		}
	}
	pc.items[number] = pc.order.PushFront(&cacheEntry{number: number, page: page})
}

// Clear drops every cached page
func (pc *pageCache) Clear() {
	pc.order.Init()
	clear(pc.items)
}

// Len returns the number of cached pages
func (pc *pageCache) Len() int {
	return pc.order.Len()
}
