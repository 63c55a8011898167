package reactor

// Tag is a type-safe key for metadata attached to registered types or to the
// registry itself.
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key.
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging).
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value attached to a registered type.
func (t Tag[T]) Get(r *Registry, typ TypeID) (T, bool) {
	val, ok := r.nodeTag(typ, t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// GetOrDefault retrieves the tag value or returns a default.
func (t Tag[T]) GetOrDefault(r *Registry, typ TypeID, defaultVal T) T {
	if val, ok := t.Get(r, typ); ok {
		return val
	}
	return defaultVal
}

// MustGet retrieves the tag value or panics if not found.
func (t Tag[T]) MustGet(r *Registry, typ TypeID) T {
	val, ok := t.Get(r, typ)
	if !ok {
		panic("tag " + t.key + " not found")
	}
	return val
}

// Set stores the tag value on a registered type.
func (t Tag[T]) Set(r *Registry, typ TypeID, val T) {
	r.setNodeTag(typ, t, val)
}

// GetFromRegistry retrieves the tag value from the registry itself.
func (t Tag[T]) GetFromRegistry(r *Registry) (T, bool) {
	val, ok := r.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// SetOnRegistry stores the tag value on the registry itself.
func (t Tag[T]) SetOnRegistry(r *Registry, val T) {
	r.SetTag(t, val)
}

var nameTag = NewTag[string]("node.name")

// Name is the tag extensions use for human-readable node names.
func Name() Tag[string] { return nameTag }
