// Package registry maps variable path templates to application getters.
//
// A path template is registered once at startup ("var_int32",
// "grid[%d].cell[%d]") and doubles as the variable's identity on the wire: a
// browser request names a template literally and supplies the index vector
// separately. The registry is built before the server accepts clients and is
// read-only afterwards, so lookups need no synchronization.
package registry

// Getter produces the current raw bytes of a variable. The returned view must
// stay valid for the duration of the synchronous call; the encoder copies it
// into its own buffers within the same tick.
type Getter func(idxs []int32) []byte

// Registry is an append-only list of getters plus a template -> getter-id
// map. Re-registering a template appends a fresh getter and repoints the
// template at it.
type Registry struct {
	paths   map[string]int
	getters []Getter
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{paths: make(map[string]int)}
}

// Register binds a path template to a getter. An existing template is
// overwritten.
func (r *Registry) Register(path string, g Getter) bool {
	r.paths[path] = len(r.getters)
	r.getters = append(r.getters, g)
	return true
}

// Resolve looks up a path as a literal key and returns its getter id.
func (r *Registry) Resolve(path string) (int, bool) {
	id, ok := r.paths[path]
	return id, ok
}

// Getter returns the getter with the given id. The id must come from Resolve.
func (r *Registry) Getter(id int) Getter {
	return r.getters[id]
}

// Len returns the number of registered getters, including ones orphaned by
// re-registration.
func (r *Registry) Len() int {
	return len(r.getters)
}
