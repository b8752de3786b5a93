package whitelist

import (
	"sort"
	"strings"
	"sync"
)

// Registry - множество id пользователей с начальным наполнением из окружения.
type Registry struct {
	name    string
	mu      sync.RWMutex
	members map[string]struct{}
}

// New создаёт реестр и заполняет его seed, отбрасывая пустые id.
func New(name string, seed []string) *Registry {
	r := &Registry{name: name, members: make(map[string]struct{}, len(seed))}
	for _, id := range seed {
		if id = strings.TrimSpace(id); id != "" {
			r.members[id] = struct{}{}
		}
	}
	return r
}

// Name возвращает имя реестра.
func (r *Registry) Name() string { return r.name }

// Contains проверяет членство.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Add добавляет id. Повторное добавление ничего не меняет и возвращает false.
func (r *Registry) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = struct{}{}
	return true
}

// Remove удаляет id и сообщает, изменилось ли членство.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// List возвращает отсортированный снимок.
func (r *Registry) List() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
