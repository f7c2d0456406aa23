package mockapi

import (
	"sort"
	"strings"

	"github.com/cody-dot-js/mock-api-server/internal/config"
)

// Route mounts a response Spec at Path. Like a servlet mount, "/a" answers
// "/a" and everything below "/a/", but not "/ab".
type Route struct {
	Path      string
	Response  Spec
	RateLimit RateLimit
}

// RateLimit makes a route answer 429 once more than Burst requests arrive faster
// than RPS. A zero RPS disables it.
type RateLimit struct {
	RPS   float64
	Burst int
}

type mount struct {
	key   string
	route Route
}

type router struct {
	mounts []mount
}

func newRouter(routes []Route) *router {
	mounts := make([]mount, 0, len(routes))
	for _, rt := range routes {
		mounts = append(mounts, mount{key: config.MountKey(rt.Path), route: rt})
	}
	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].key) > len(mounts[j].key)
	})
	return &router{mounts: mounts}
}

// match returns the index of the longest mount containing path, or -1.
func (r *router) match(path string) int {
	for i := range r.mounts {
		if mountContains(r.mounts[i].key, path) {
			return i
		}
	}
	return -1
}

func mountContains(key, path string) bool {
	if key == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == key || strings.HasPrefix(path, key+"/")
}
