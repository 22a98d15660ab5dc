package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects work for a module an operator has halted.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%s: %w", module, ErrModulePaused)
	}
	return nil
}

// Pauses is an operator-controlled PauseView. Module names are case
// insensitive.
type Pauses struct {
	mu     sync.RWMutex
	halted map[string]bool
}

func NewPauses(modules ...string) *Pauses {
	p := &Pauses{halted: make(map[string]bool)}
	for _, m := range modules {
		p.Set(m, true)
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.halted[normalize(module)]
}

func (p *Pauses) Set(module string, paused bool) {
	key := normalize(module)
	if key == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.halted[key] = true
		return
	}
	delete(p.halted, key)
}

// Paused lists the halted modules in order.
func (p *Pauses) Paused() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.halted))
	for m := range p.halted {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func normalize(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
