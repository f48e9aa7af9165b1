package model

// Principal is the authenticated caller of a request. It is built once from
// verified claims and never modified afterwards.
type Principal struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	// LinkedEntityID is the Patient or Clinician row the user is bound to.
	LinkedEntityID *int64 `json:"linked_entity_id,omitempty"`
}

// NewPrincipal copies linkedEntityID so callers cannot mutate it later.
func NewPrincipal(userID int64, role Role, linkedEntityID *int64) Principal {
	p := Principal{UserID: userID, Role: role}
	if linkedEntityID != nil {
		id := *linkedEntityID
		p.LinkedEntityID = &id
	}
	return p
}

// Linked returns the linked entity id and whether one is set.
func (p Principal) Linked() (int64, bool) {
	if p.LinkedEntityID == nil {
		return 0, false
	}
	return *p.LinkedEntityID, true
}
