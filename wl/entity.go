package wl

type EntityType string

func (et EntityType) String() string {
	return string(et)
}

type EntityTyped interface {
	EntityType() EntityType
}

func EntityTypeOf(state any) EntityType {
	if named, ok := state.(EntityTyped); ok == true {
		return named.EntityType()
	}

	return EntityType(NameOf(state))
}

// Entity is an aggregate reconstructed from its stream. It exists only
// transiently during command handling; the stream is the persisted form.
type Entity[T any] struct {
	Stream  StreamID
	Version uint64
	Type    EntityType
	State   *T
}

func (e *Entity[T]) Initialized() bool {
	return e.Version > 0
}
