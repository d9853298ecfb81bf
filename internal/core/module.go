// Package core provides the module system recall is assembled from:
// storage backends, the dashboard gateway and the job scheduler are modules
// selected by configuration and wired through a shared service registry.
package core

// ModuleID is a dotted module identifier, e.g. "store.sqlite".
type ModuleID string

// Namespace returns the part before the first dot ("store" for
// "store.sqlite"), or the whole ID when there is none.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every module.
type Module interface {
	ModuleInfo() ModuleInfo
}
