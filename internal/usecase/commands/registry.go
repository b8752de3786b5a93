package commands

import (
	"fmt"
	"sort"
	"strings"
)

// Registry - неизменяемый после сборки набор команд.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry собирает реестр. Повторяющиеся имена считаются ошибкой.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		name := strings.ToLower(strings.TrimSpace(def.Name))
		if name == "" {
			return nil, fmt.Errorf("команда без имени")
		}
		if def.exec == nil {
			return nil, fmt.Errorf("команда %s без обработчика", name)
		}
		if _, dup := r.defs[name]; dup {
			return nil, fmt.Errorf("команда %s объявлена дважды", name)
		}
		def.Name = name
		r.defs[name] = def
	}
	return r, nil
}

// Lookup ищет команду по имени без учёта регистра.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[strings.ToLower(name)]
	return def, ok
}

// Names возвращает отсортированные имена команд.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
