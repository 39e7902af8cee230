// Package session tracks the orders placed by each command block and the
// algorithmic orders still running, so both can be found and cancelled.
package session

import (
	"sync"

	"instabot-trader/internal/models"
)

// Entry is one order placed within a session.
type Entry struct {
	Session string
	Tag     string
	Order   *models.Order
}

// Registry records orders by session and tag. Entries are never removed;
// it lives as long as the exchange instance that owns it.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add records order under session and tag. Nil orders are ignored.
func (r *Registry) Add(session, tag string, order *models.Order) {
	if order == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Session: session, Tag: tag, Order: order})
}

// Find returns every order of session, in placement order.
func (r *Registry) Find(session string) []*models.Order {
	return r.find(func(e Entry) bool { return e.Session == session })
}

// FindTagged returns the orders of session carrying tag.
func (r *Registry) FindTagged(session, tag string) []*models.Order {
	return r.find(func(e Entry) bool { return e.Session == session && e.Tag == tag })
}

func (r *Registry) find(match func(Entry) bool) []*models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*models.Order
	for _, e := range r.entries {
		if match(e) {
			orders = append(orders, e.Order)
		}
	}
	return orders
}

// Len is the number of recorded orders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
