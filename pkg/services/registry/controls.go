package registry

import (
	"fmt"
	"sort"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
)

// ControlRegistry maps control identifiers to control instances. It is
// built once at process start from the compiled-in control sets and is
// read-only afterwards; there is no hot reload.
type ControlRegistry struct {
	byID map[string]controls.Control
	ids  []string
}

// NewControlRegistry assembles the registry. A duplicate identifier, or a
// control declaring AutoRemediable without implementing Remediator, is a
// startup-fatal configuration error.
func NewControlRegistry(sets ...[]controls.Control) (*ControlRegistry, error) {
	r := &ControlRegistry{byID: make(map[string]controls.Control)}

	for _, set := range sets {
		for _, ctl := range set {
			meta := ctl.Meta()
			if meta.ID == "" {
				return nil, fmt.Errorf("control %q has an empty identifier", meta.Title)
			}
			if _, exists := r.byID[meta.ID]; exists {
				return nil, fmt.Errorf("duplicate control identifier %q", meta.ID)
			}
			if meta.AutoRemediable {
				if _, ok := ctl.(controls.Remediator); !ok {
					return nil, fmt.Errorf("control %q declares auto-remediation but implements none", meta.ID)
				}
			}
			r.byID[meta.ID] = ctl
			r.ids = append(r.ids, meta.ID)
		}
	}

	sort.Strings(r.ids)
	return r, nil
}

// Get looks up a control by identifier.
func (r *ControlRegistry) Get(id string) (controls.Control, error) {
	ctl, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("control %q: %w", id, domain.ErrNotFound)
	}
	return ctl, nil
}

// All returns every registered control in identifier order.
func (r *ControlRegistry) All() []controls.Control {
	out := make([]controls.Control, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// ForProvider returns the controls applicable to one cloud provider.
func (r *ControlRegistry) ForProvider(name string) []controls.Control {
	var out []controls.Control
	for _, id := range r.ids {
		if ctl := r.byID[id]; ctl.Meta().Provider == name {
			out = append(out, ctl)
		}
	}
	return out
}
