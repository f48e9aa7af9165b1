package model

import "sort"

// EntityType names a domain entity for ownership and audit purposes.
type EntityType string

const (
	EntityPatient        EntityType = "patients"
	EntityAppointment    EntityType = "appointments"
	EntityPrescription   EntityType = "prescriptions"
	EntityBilling        EntityType = "billing"
	EntityMedicalHistory EntityType = "medical_history"
	EntitySurgery        EntityType = "surgeries"
	EntityRoom           EntityType = "rooms"
	EntityEquipment      EntityType = "equipment"
)

// OwnerKey says which principal field an owner set is compared against.
type OwnerKey int

const (
	// OwnerKeyUser compares against Principal.UserID.
	OwnerKeyUser OwnerKey = iota
	// OwnerKeyEntity compares against Principal.LinkedEntityID.
	OwnerKeyEntity
)

// IDSet is a set of user or entity ids.
type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResourceOwnership lists who counts as an owner of one loaded resource.
type ResourceOwnership struct {
	EntityType EntityType
	Key        OwnerKey
	Owners     IDSet
}

// Owns reports whether the principal is among the owners.
func (o ResourceOwnership) Owns(p Principal) bool {
	switch o.Key {
	case OwnerKeyEntity:
		id, ok := p.Linked()
		return ok && o.Owners.Contains(id)
	default:
		return o.Owners.Contains(p.UserID)
	}
}

// UserOwnership is a user-keyed ownership with the given owners.
func UserOwnership(entity EntityType, userIDs ...int64) ResourceOwnership {
	return ResourceOwnership{EntityType: entity, Key: OwnerKeyUser, Owners: NewIDSet(userIDs...)}
}
