package enums

// CartOwnerKind distinguishes anonymous session carts from user carts.
type CartOwnerKind string

const (
	CartOwnerGuest CartOwnerKind = "guest"
	CartOwnerUser  CartOwnerKind = "user"
)

// String implements fmt.Stringer.
func (k CartOwnerKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CartOwnerKind.
func (k CartOwnerKind) IsValid() bool {
	return k == CartOwnerGuest || k == CartOwnerUser
}

// CartDeactivationReason records why a cart left the active state.
type CartDeactivationReason string

const (
	CartDeactivatedMerged    CartDeactivationReason = "merged"
	CartDeactivatedLogout    CartDeactivationReason = "logout"
	CartDeactivatedStale     CartDeactivationReason = "stale"
	CartDeactivatedDuplicate CartDeactivationReason = "duplicate"
)

var deactivationReasons = []CartDeactivationReason{
	CartDeactivatedMerged,
	CartDeactivatedLogout,
	CartDeactivatedStale,
	CartDeactivatedDuplicate,
}

func (r CartDeactivationReason) String() string { return string(r) }

func (r CartDeactivationReason) IsValid() bool { return member(r, deactivationReasons) }

func ParseCartDeactivationReason(raw string) (CartDeactivationReason, error) {
	return parse("cart deactivation reason", raw, deactivationReasons)
}
