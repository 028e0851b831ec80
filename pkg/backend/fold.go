package backend

import "sort"

// Fold flattens the per-Ingress backend map into the single ordered
// sequence the renderer consumes. Order must not depend on map iteration:
// entries are sorted by (ingressName, backendName) per spec.
func Fold(byIngress map[string][]Backend) []Backend {
	names := make([]string, 0, len(byIngress))
	for name := range byIngress {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Backend
	for _, name := range names {
		bs := make([]Backend, len(byIngress[name]))
		copy(bs, byIngress[name])
		sort.Slice(bs, func(i, j int) bool { return bs[i].Name < bs[j].Name })
		out = append(out, bs...)
	}
	return out
}
