// Package composer turns the healthy services of a probe round into the
// gateway's routing table.
package composer

import (
	"regexp"
	"sort"

	"carelink/internal/registry"
	"carelink/pkg/apperr"
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// Route maps one namespace to its owning backend.
type Route struct {
	Namespace string `json:"namespace"`
	Service   string `json:"service"`
	Address   string `json:"address"`
}

// Table is an immutable routing table ordered by namespace.
type Table struct {
	routes []Route
	index  map[string]Route
}

// Compose builds the table. Services are visited in name order so that a
// conflict always names the same pair.
func Compose(healthy []registry.Healthy) (*Table, error) {
	if len(healthy) == 0 {
		return nil, apperr.New(apperr.NoServicesAvailable, "no healthy services to compose")
	}
	ordered := append([]registry.Healthy(nil), healthy...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	t := &Table{index: make(map[string]Route)}
	for _, h := range ordered {
		if len(h.Descriptor.Namespaces) == 0 {
			return nil, compositionError(h.Name, "service declares no namespaces")
		}
		for _, ns := range h.Descriptor.Namespaces {
			if !namespacePattern.MatchString(ns) {
				return nil, compositionError(h.Name, "service declares an invalid namespace").With("namespace", ns)
			}
			if prev, ok := t.index[ns]; ok {
				if prev.Service == h.Name {
					return nil, compositionError(h.Name, "service declares a namespace twice").With("namespace", ns)
				}
				return nil, compositionError(h.Name, "namespace already owned by another service").
					With("namespace", ns).
					With("conflictsWith", prev.Service)
			}
			r := Route{Namespace: ns, Service: h.Name, Address: h.Address}
			t.index[ns] = r
			t.routes = append(t.routes, r)
		}
	}
	sort.Slice(t.routes, func(i, j int) bool { return t.routes[i].Namespace < t.routes[j].Namespace })
	return t, nil
}

func compositionError(service, msg string) *apperr.Error {
	return apperr.New(apperr.Composition, msg).With("service", service)
}

// Lookup returns the route for a namespace.
func (t *Table) Lookup(namespace string) (Route, bool) {
	r, ok := t.index[namespace]
	return r, ok
}

// Routes returns a copy of the table.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Services lists the distinct backends in the table, sorted.
func (t *Table) Services() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.routes {
		if _, ok := seen[r.Service]; !ok {
			seen[r.Service] = struct{}{}
			out = append(out, r.Service)
		}
	}
	sort.Strings(out)
	return out
}
