package domain

import "sync"

// RecentSet помнит последние увиденные идентификаторы. Когда размер превышает
// limit, самые старые записи вытесняются до keep штук.
type RecentSet struct {
	mu    sync.Mutex
	limit int
	keep  int
	order []string
	seen  map[string]struct{}
}

// NewRecentSet создаёт множество с порогом limit и остатком keep после чистки.
func NewRecentSet(limit, keep int) *RecentSet {
	if limit <= 0 {
		limit = 1000
	}
	if keep <= 0 || keep > limit {
		keep = limit / 2
	}
	return &RecentSet{limit: limit, keep: keep, seen: make(map[string]struct{}, limit+1)}
}

// Add добавляет id и сообщает, был ли он новым.
func (r *RecentSet) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.limit {
		drop := len(r.order) - r.keep
		for _, old := range r.order[:drop] {
			delete(r.seen, old)
		}
		r.order = append([]string(nil), r.order[drop:]...)
	}
	return true
}

// Contains проверяет наличие id.
func (r *RecentSet) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// Len возвращает текущее количество записей.
func (r *RecentSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
