package types

// Authorizer is the injectable authorization capability guarding owner-gated
// operations. The production deployment uses a single fixed owner; tests can
// substitute any policy, and the capability could later be replaced with a
// multi-party scheme without touching the core logic.
type Authorizer interface {
	// IsAuthorized reports whether the caller may perform owner-gated
	// operations.
	IsAuthorized(caller string) bool
}

// SingleOwner authorizes exactly one identity.
type SingleOwner struct {
	Owner string
}

// NewSingleOwner creates an Authorizer accepting only the given identity.
func NewSingleOwner(owner string) SingleOwner {
	return SingleOwner{Owner: owner}
}

func (s SingleOwner) IsAuthorized(caller string) bool {
	return s.Owner != "" && caller == s.Owner
}
