// Package ownership projects loaded domain records onto the set of users
// that own them. It never consults roles or permissions.
package ownership

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/admin-authz/internal/model"
)

var (
	// ErrNoOwnership is returned for entities that have no owner concept,
	// such as rooms and equipment.
	ErrNoOwnership     = errors.New("entity type has no ownership")
	ErrUnsupportedType = errors.New("unsupported entity type")
	ErrTypeMismatch    = errors.New("resource does not match entity type")
)

// Rule computes the owning user ids of one resource.
type Rule func(resource interface{}) ([]int64, error)

// Resolver holds one explicit rule per entity type.
type Resolver struct {
	rules     map[model.EntityType]Rule
	ownerless map[model.EntityType]bool
}

// NewResolver returns a resolver with the standard clinical rules.
func NewResolver() *Resolver {
	return &Resolver{
		rules: map[model.EntityType]Rule{
			model.EntityPatient:        patientOwners,
			model.EntityAppointment:    appointmentOwners,
			model.EntityPrescription:   prescriptionOwners,
			model.EntityBilling:        invoiceOwners,
			model.EntityMedicalHistory: medicalHistoryOwners,
			model.EntitySurgery:        surgeryOwners,
		},
		ownerless: map[model.EntityType]bool{
			model.EntityRoom:      true,
			model.EntityEquipment: true,
		},
	}
}

// ResolveOwners returns the user-keyed ownership of resource.
func (r *Resolver) ResolveOwners(entity model.EntityType, resource interface{}) (model.ResourceOwnership, error) {
	if r.ownerless[entity] {
		return model.ResourceOwnership{}, fmt.Errorf("%w: %s", ErrNoOwnership, entity)
	}
	rule, ok := r.rules[entity]
	if !ok {
		return model.ResourceOwnership{}, fmt.Errorf("%w: %s", ErrUnsupportedType, entity)
	}
	if resource == nil {
		return model.ResourceOwnership{}, fmt.Errorf("%w: nil %s", ErrTypeMismatch, entity)
	}

	ids, err := rule(resource)
	if err != nil {
		return model.ResourceOwnership{}, fmt.Errorf("%w: %s got %T", err, entity, resource)
	}
	return model.UserOwnership(entity, ids...), nil
}

// HasOwnership reports whether entity has an ownership rule.
func (r *Resolver) HasOwnership(entity model.EntityType) bool {
	_, ok := r.rules[entity]
	return ok
}

// NotificationRecipients returns the owning user ids in ascending order,
// for callers that need to notify owners of a change.
func (r *Resolver) NotificationRecipients(entity model.EntityType, resource interface{}) ([]int64, error) {
	o, err := r.ResolveOwners(entity, resource)
	if err != nil {
		return nil, err
	}
	return o.Owners.Sorted(), nil
}

// linked drops unset ids: a patient without a login owns nothing.
func linked(ids ...*int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != nil && *id != 0 {
			out = append(out, *id)
		}
	}
	return out
}

func patientOwners(resource interface{}) ([]int64, error) {
	switch v := resource.(type) {
	case *model.Patient:
		if v == nil {
			return nil, ErrTypeMismatch
		}
		return linked(v.UserID), nil
	case model.Patient:
		return linked(v.UserID), nil
	}
	return nil, ErrTypeMismatch
}

func appointmentOwners(resource interface{}) ([]int64, error) {
	switch v := resource.(type) {
	case *model.Appointment:
		if v == nil {
			return nil, ErrTypeMismatch
		}
		return linked(v.Patient.UserID, v.Clinician.UserID), nil
	case model.Appointment:
		return linked(v.Patient.UserID, v.Clinician.UserID), nil
	}
	return nil, ErrTypeMismatch
}

func prescriptionOwners(resource interface{}) ([]int64, error) {
	switch v := resource.(type) {
	case *model.Prescription:
		if v == nil {
			return nil, ErrTypeMismatch
		}
		return linked(v.Patient.UserID), nil
	case model.Prescription:
		return linked(v.Patient.UserID), nil
	}
	return nil, ErrTypeMismatch
}

func invoiceOwners(resource interface{}) ([]int64, error) {
	switch v := resource.(type) {
	case *model.Invoice:
		if v == nil {
			return nil, ErrTypeMismatch
		}
		return linked(v.Patient.UserID), nil
	case model.Invoice:
		return linked(v.Patient.UserID), nil
	}
	return nil, ErrTypeMismatch
}

func medicalHistoryOwners(resource interface{}) ([]int64, error) {
	switch v := resource.(type) {
	case *model.MedicalHistoryEntry:
		if v == nil {
			return nil, ErrTypeMismatch
		}
		return linked(v.Patient.UserID), nil
	case model.MedicalHistoryEntry:
		return linked(v.Patient.UserID), nil
	}
	return nil, ErrTypeMismatch
}

// Only the patient owns a surgery; the surgeon reads through
// surgeries:view_all.
func surgeryOwners(resource interface{}) ([]int64, error) {
	switch v := resource.(type) {
	case *model.Surgery:
		if v == nil {
			return nil, ErrTypeMismatch
		}
		return linked(v.Patient.UserID), nil
	case model.Surgery:
		return linked(v.Patient.UserID), nil
	}
	return nil, ErrTypeMismatch
}
