package mockapi

import "sync"

var registry = struct {
	sync.RWMutex
	builders map[string]func() []Route
}{builders: map[string]func() []Route{}}

// Register makes a route table available under name in every process that runs
// the same registration, which is how Dynamic specs reach the serving child.
// Call it from an init function or from TestMain before Main.
// Register panics if name is empty, build is nil, or name is already taken.
func Register(name string, build func() []Route) {
	if name == "" {
		panic("mockapi: Register with empty name")
	}
	if build == nil {
		panic("mockapi: Register with nil builder for " + name)
	}
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.builders[name]; dup {
		panic("mockapi: Register called twice for " + name)
	}
	registry.builders[name] = build
}

func lookup(name string) (func() []Route, bool) {
	registry.RLock()
	defer registry.RUnlock()
	b, ok := registry.builders[name]
	return b, ok
}
