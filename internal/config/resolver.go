package config

import (
	"slices"
	"strings"
)

// Resolve returns a sorted list of module IDs from the configuration,
// adding DefaultStoreModule when no store module is listed. The
// deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules)+1)
	hasStore := false
	for id := range cfg.Modules {
		ids = append(ids, id)
		if isStoreModule(id) {
			hasStore = true
		}
	}
	if !hasStore {
		ids = append(ids, DefaultStoreModule)
	}
	slices.Sort(ids)
	return ids
}

func isStoreModule(id string) bool {
	return strings.HasPrefix(id, "store.")
}
