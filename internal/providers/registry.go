package providers

import (
	"sort"
	"strings"
	"sync"

	"github.com/gton-market/settlement/internal/models"
)

type entry struct {
	cfg     models.PaymentProvider
	adapter Adapter
}

// Registry is the explicit id -> adapter map built at startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds a provider config row to its adapter. Currencies missing
// in the row are taken from the adapter.
func (r *Registry) Register(cfg models.PaymentProvider, a Adapter) {
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = a.Currencies()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = a.DefaultCurrency()
	}
	r.mu.Lock()
	r.entries[cfg.ID] = entry{cfg: cfg, adapter: a}
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Adapter, models.PaymentProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || !e.cfg.Enabled {
		return nil, models.PaymentProvider{}, false
	}
	return e.adapter, e.cfg, true
}

// Supports reports whether the provider accepts the currency.
func (r *Registry) Supports(id, currency string) bool {
	_, cfg, ok := r.Get(id)
	if !ok {
		return false
	}
	for _, c := range cfg.Currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// List returns enabled providers by sort order.
func (r *Registry) List() []models.PaymentProvider {
	r.mu.RLock()
	out := make([]models.PaymentProvider, 0, len(r.entries))
	for _, e := range r.entries {
		if e.cfg.Enabled {
			out = append(out, e.cfg)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}
