package relation

// Option is a relation setting that is either a fixed value or computed
// from the owning entity each time relations are fetched.
// The zero Option is unset.
type Option[T any] struct {
	value T
	fn    func(*Entity) T
	set   bool
}

// Static returns an Option that always yields v.
func Static[T any](v T) Option[T] {
	return Option[T]{value: v, set: true}
}

// Computed returns an Option evaluated against the owning entity.
//
//	Where: relation.Computed(func(e *relation.Entity) scope.Cond {
//		return scope.Eq("draft", e.Get("drafts"))
//	})
func Computed[T any](fn func(*Entity) T) Option[T] {
	return Option[T]{fn: fn, set: fn != nil}
}

// IsSet reports whether the Option carries a value or a function.
func (o Option[T]) IsSet() bool { return o.set }

// Eval returns the value for e, or the zero T when unset.
func (o Option[T]) Eval(e *Entity) T {
	if o.fn != nil {
		return o.fn(e)
	}
	return o.value
}
