package checks

import (
	"fmt"
	"sync"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

type Registry struct {
	mu     sync.RWMutex
	checks []Check
	byID   map[string]Check
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Check)}
}

// DefaultRegistry returns every built-in check.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Check{
		NewDisapprovedAds(),
		NewBudgetPacing(),
		NewAudienceGaps(),
		NewConversionTracking(),
		NewSpendAnomaly(),
		NewWebsiteAvailability(),
		NewTrackingTags(),
	} {
		r.MustRegister(c)
	}
	return r
}

func (r *Registry) Register(c Check) error {
	if c.ID() == "" {
		return fmt.Errorf("check has empty id")
	}
	if len(c.Channels()) == 0 {
		return fmt.Errorf("check %s declares no channels", c.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID()]; exists {
		return fmt.Errorf("check %s already registered", c.ID())
	}
	r.byID[c.ID()] = c
	r.checks = append(r.checks, c)
	return nil
}

func (r *Registry) MustRegister(c Check) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(id string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// All returns checks in registration order.
func (r *Registry) All() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Check, len(r.checks))
	copy(out, r.checks)
	return out
}

// ForChannel returns the checks that apply to ch.
func (r *Registry) ForChannel(ch models.Channel) []Check {
	var out []Check
	for _, c := range r.All() {
		for _, cc := range c.Channels() {
			if cc == ch {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// PrimaryChannel is the first channel a check declares.
func PrimaryChannel(c Check) models.Channel {
	return c.Channels()[0]
}
