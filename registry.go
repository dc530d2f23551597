package keyedarchive

import (
	"sync"

	"github.com/appsworld/keyedarchive/cf"
)

// A ClassHandler converts an archived class instance into a plain value. The
// dictionary it receives has every contained value already resolved. Handlers
// must be pure; a handler that cannot make sense of its input returns
// cf.Null{}.
type ClassHandler func(dict *cf.Dictionary) cf.Value

var (
	registryMu sync.RWMutex
	registry   = map[string]ClassHandler{}
)

// RegisterClassHandler installs fn for the exact, case-sensitive class name.
// Only Unarchivers constructed after registration observe it; existing
// instances keep their snapshot.
func RegisterClassHandler(name string, fn ClassHandler) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

func snapshotRegistry() map[string]ClassHandler {
	registryMu.RLock()
	defer registryMu.RUnlock()
	snapshot := make(map[string]ClassHandler, len(registry))
	for name, fn := range registry {
		snapshot[name] = fn
	}
	return snapshot
}
