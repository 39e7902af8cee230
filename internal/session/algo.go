package session

import (
	"sort"
	"sync"
	"sync/atomic"

	"instabot-trader/internal/ids"
	"instabot-trader/internal/models"
)

// Which selects the orders a cancel request applies to.
type Which string

const (
	WhichBuy     Which = "buy"
	WhichSell    Which = "sell"
	WhichAll     Which = "all"
	WhichSession Which = "session"
	WhichTagged  Which = "tagged"
)

// ParseWhich maps a cancel selector; anything unknown means the session.
func ParseWhich(s string) Which {
	switch w := Which(s); w {
	case WhichBuy, WhichSell, WhichAll, WhichTagged:
		return w
	}
	return WhichSession
}

// Algo is a running algorithmic order. Its loop polls Cancelled.
type Algo struct {
	ID      string
	Side    models.Side
	Session string
	Tag     string

	cancelled atomic.Bool
}

// Cancelled reports whether a cancel request has reached this order.
func (a *Algo) Cancelled() bool {
	return a.cancelled.Load()
}

// Cancel flags the order; its loop stops at the next poll.
func (a *Algo) Cancel() {
	a.cancelled.Store(true)
}

func (a *Algo) matches(which Which, tag, session string) bool {
	switch which {
	case WhichBuy, WhichSell:
		return string(a.Side) == string(which)
	case WhichAll:
		return true
	case WhichTagged:
		return a.Session == session && a.Tag == tag
	default:
		return a.Session == session
	}
}

// AlgoRegistry holds the algorithmic orders that are still running.
type AlgoRegistry struct {
	mu    sync.RWMutex
	algos map[string]*Algo
}

// NewAlgoRegistry returns an empty registry.
func NewAlgoRegistry() *AlgoRegistry {
	return &AlgoRegistry{algos: make(map[string]*Algo)}
}

// Start registers a new algorithmic order and returns its handle.
func (r *AlgoRegistry) Start(side models.Side, session, tag string) *Algo {
	a := &Algo{ID: ids.New(), Side: side, Session: session, Tag: tag}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.algos[a.ID] = a
	return a
}

// End removes a finished order.
func (r *AlgoRegistry) End(a *Algo) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.algos, a.ID)
}

// IsCancelled reports whether id has been cancelled. Unknown ids are not.
func (r *AlgoRegistry) IsCancelled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algos[id]
	return ok && a.Cancelled()
}

// Cancel flags every running order matched by which and returns how many
// were flagged. buy and sell match on side, all matches everything,
// tagged matches the session and tag, session matches the session.
func (r *AlgoRegistry) Cancel(which Which, tag, session string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.algos {
		if a.matches(which, tag, session) {
			a.Cancel()
			n++
		}
	}
	return n
}

// Active lists the running orders, oldest first.
func (r *AlgoRegistry) Active() []*Algo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Algo, 0, len(r.algos))
	for _, a := range r.algos {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
