package repository

import (
	"errors"
	"sync"
	"time"

	"mirror-backend/internal/domain"
)

// InMemoryMirrorRepository keeps the ticket map and closed-pair history in
// process memory. Active pairs are rebuilt from position comments after a
// restart; history starts empty.
type InMemoryMirrorRepository struct {
	pairs    map[int64]*domain.MirrorPair // original ticket -> pair
	mirrored map[int64]bool               // originals that ever had a reverse
	history  []*domain.MirrorPair
	mu       sync.RWMutex
}

func NewInMemoryMirrorRepository() *InMemoryMirrorRepository {
	return &InMemoryMirrorRepository{
		pairs:    make(map[int64]*domain.MirrorPair),
		mirrored: make(map[int64]bool),
	}
}

func (r *InMemoryMirrorRepository) SavePair(pair *domain.MirrorPair) error {
	if pair == nil {
		return errors.New("nil pair")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *pair
	r.pairs[pair.OriginalTicket] = &cp
	r.mirrored[pair.OriginalTicket] = true
	return nil
}

func (r *InMemoryMirrorRepository) GetActivePairs() []*domain.MirrorPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.MirrorPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		cp := *p
		result = append(result, &cp)
	}
	return result
}

func (r *InMemoryMirrorRepository) GetPairByOriginal(originalTicket int64) (*domain.MirrorPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[originalTicket]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// UpdatePair replaces the stored pair. A pair updated to status CLOSED is
// moved from the active map into history.
func (r *InMemoryMirrorRepository) UpdatePair(pair *domain.MirrorPair) error {
	if pair == nil {
		return errors.New("nil pair")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[pair.OriginalTicket]; !ok {
		return errors.New("pair not found")
	}
	cp := *pair
	if cp.Status == "CLOSED" {
		delete(r.pairs, cp.OriginalTicket)
		r.history = append(r.history, &cp)
	} else {
		r.pairs[cp.OriginalTicket] = &cp
	}
	return nil
}

func (r *InMemoryMirrorRepository) HasMirrored(originalTicket int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mirrored[originalTicket]
}

func (r *InMemoryMirrorRepository) MarkMirrored(originalTicket int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrored[originalTicket] = true
}

func (r *InMemoryMirrorRepository) GetHistory(fromTime time.Time) []*domain.MirrorPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.MirrorPair, 0)
	for _, p := range r.history {
		if p.ClosedAt != nil && p.ClosedAt.Before(fromTime) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result
}
