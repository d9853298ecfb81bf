package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// registry holds every module compiled into the binary. Modules add
// themselves from init(); configuration then picks which ones load.
var registry = struct {
	sync.RWMutex
	byID map[string]ModuleInfo
}{byID: make(map[string]ModuleInfo)}

// RegisterModule records a module under the ID reported by its ModuleInfo.
// It panics on an empty ID, a nil constructor or a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.byID[string(info.ID)]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.byID[string(info.ID)] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[id]
	return info, ok
}

// GetModules lists registered modules ordered by ID.
func GetModules() []ModuleInfo {
	registry.RLock()
	defer registry.RUnlock()
	return slices.SortedFunc(maps.Values(registry.byID), func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// resetRegistry empties the registry. Tests only.
func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.byID = make(map[string]ModuleInfo)
}
