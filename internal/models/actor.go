package models

// ActorRole is the closed set of parties that may drive a reservation
// transition.
type ActorRole string

const (
	RoleOwner    ActorRole = "owner"
	RoleEmployee ActorRole = "employee"
	RoleCustomer ActorRole = "customer"
	RoleSystem   ActorRole = "system"
)

// Actor identifies who performed an operation. It replaces ad-hoc "role in
// request user" branching with an explicit tag the engine consumes uniformly.
type Actor struct {
	ID   string    `json:"id"`
	Name string    `json:"name,omitempty"`
	Role ActorRole `json:"role"`
}

// Staff reports whether the actor acts on the venue's behalf.
func (a Actor) Staff() bool {
	return a.Role == RoleOwner || a.Role == RoleEmployee
}

// System is the actor used for scheduler-driven transitions.
var System = Actor{ID: "system", Role: RoleSystem}
