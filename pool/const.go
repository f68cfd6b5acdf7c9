package pool

// Role describes the routing role an endpoint is bound for.
type Role uint32

const (
	MasterRole  Role = iota // The endpoint accepts writes.
	ReplicaRole             // The endpoint serves read-only requests.
)

func (r Role) String() string {
	switch r {
	case MasterRole:
		return "master"
	case ReplicaRole:
		return "replica"
	default:
		return "unknown"
	}
}

/*
State of a role slot:

	  Unresolved --Master()/Replica()--> Resolving --open ok--> Bound
	      ^                                  |                    |
	      +-------------all endpoints failed-+                    |
	      +----------------------------Close()--------------------+
*/
type State uint32

const (
	Unresolved State = iota // No endpoint is bound.
	Resolving               // An endpoint is being opened.
	Bound                   // A handle is bound and reused.
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Bound:
		return "bound"
	default:
		return "unknown"
	}
}
