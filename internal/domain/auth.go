package domain

// ActorType differentiates who triggered a change.
type ActorType string

const (
	ActorTypeUser   ActorType = "USER"
	ActorTypeSystem ActorType = "SYSTEM"
)

// Actor identifies the party performing a mutation.
type Actor struct {
	Type ActorType
	ID   string
}

// SystemActor is used for changes made by the ingestion pipeline itself.
func SystemActor(id string) Actor {
	return Actor{Type: ActorTypeSystem, ID: id}
}

// UserActor wraps a directory user id.
func UserActor(id string) Actor {
	return Actor{Type: ActorTypeUser, ID: id}
}
