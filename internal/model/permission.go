package model

import (
	"sort"
	"strings"
)

// Permission is a namespaced "resource:action" identifier.
type Permission string

// ownSuffix marks ownership-scoped actions such as view_own.
const ownSuffix = "_own"

const (
	PermPatientsViewAll   Permission = "patients:view_all"
	PermPatientsViewOwn   Permission = "patients:view_own"
	PermPatientsCreate    Permission = "patients:create"
	PermPatientsUpdate    Permission = "patients:update"
	PermPatientsUpdateOwn Permission = "patients:update_own"
	PermPatientsDelete    Permission = "patients:delete"

	PermAppointmentsViewAll   Permission = "appointments:view_all"
	PermAppointmentsViewOwn   Permission = "appointments:view_own"
	PermAppointmentsCreate    Permission = "appointments:create"
	PermAppointmentsUpdate    Permission = "appointments:update"
	PermAppointmentsCancel    Permission = "appointments:cancel"
	PermAppointmentsCancelOwn Permission = "appointments:cancel_own"
	PermAppointmentsCheckin   Permission = "appointments:checkin"

	PermPrescriptionsViewAll       Permission = "prescriptions:view_all"
	PermPrescriptionsViewOwn       Permission = "prescriptions:view_own"
	PermPrescriptionsCreate        Permission = "prescriptions:create"
	PermPrescriptionsApproveRefill Permission = "prescriptions:approve_refill"
	PermPrescriptionsRequestRefill Permission = "prescriptions:request_refill"

	PermSurgeriesViewAll Permission = "surgeries:view_all"
	PermSurgeriesViewOwn Permission = "surgeries:view_own"
	PermSurgeriesCreate  Permission = "surgeries:create"
	PermSurgeriesUpdate  Permission = "surgeries:update"
	PermSurgeriesPerform Permission = "surgeries:perform"

	PermBillingViewAll        Permission = "billing:view_all"
	PermBillingViewOwn        Permission = "billing:view_own"
	PermBillingCreateInvoice  Permission = "billing:create_invoice"
	PermBillingProcessPayment Permission = "billing:process_payment"

	PermMedicalHistoryViewAll Permission = "medical_history:view_all"
	PermMedicalHistoryViewOwn Permission = "medical_history:view_own"
	PermMedicalHistoryCreate  Permission = "medical_history:create"

	PermRoomsManage     Permission = "rooms:manage"
	PermRoomsView       Permission = "rooms:view"
	PermEquipmentView   Permission = "equipment:view"
	PermEquipmentManage Permission = "equipment:manage"

	PermUsersManage Permission = "users:manage"
	PermAuditView   Permission = "audit:view"
	PermAuditExport Permission = "audit:export"
)

func (p Permission) String() string {
	return string(p)
}

// Resource is the part before the colon.
func (p Permission) Resource() string {
	res, _, _ := strings.Cut(string(p), ":")
	return res
}

// Action is the part after the colon, empty when malformed.
func (p Permission) Action() string {
	_, act, _ := strings.Cut(string(p), ":")
	return act
}

// Scoped reports whether the permission only applies to owned resources.
func (p Permission) Scoped() bool {
	return strings.HasSuffix(p.Action(), ownSuffix)
}

// AllCounterpart maps a scoped permission to its unrestricted twin:
// patients:view_own -> patients:view_all, patients:update_own ->
// patients:update. It returns false for unscoped permissions.
func (p Permission) AllCounterpart() (Permission, bool) {
	if !p.Scoped() {
		return "", false
	}
	act := strings.TrimSuffix(p.Action(), ownSuffix)
	if act == "view" {
		act = "view_all"
	}
	return Permission(p.Resource() + ":" + act), true
}

// WellFormed checks the resource:action shape.
func (p Permission) WellFormed() bool {
	res, act, ok := strings.Cut(string(p), ":")
	return ok && res != "" && act != "" && !strings.Contains(act, ":")
}

// PermissionSet is a read-only membership set once handed out.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// ContainsAll reports whether s is a superset of other.
func (s PermissionSet) ContainsAll(other PermissionSet) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeclaredPermissions is every permission constant defined above.
func DeclaredPermissions() []Permission {
	return []Permission{
		PermPatientsViewAll, PermPatientsViewOwn, PermPatientsCreate,
		PermPatientsUpdate, PermPatientsUpdateOwn, PermPatientsDelete,
		PermAppointmentsViewAll, PermAppointmentsViewOwn, PermAppointmentsCreate,
		PermAppointmentsUpdate, PermAppointmentsCancel, PermAppointmentsCancelOwn,
		PermAppointmentsCheckin,
		PermPrescriptionsViewAll, PermPrescriptionsViewOwn, PermPrescriptionsCreate,
		PermPrescriptionsApproveRefill, PermPrescriptionsRequestRefill,
		PermSurgeriesViewAll, PermSurgeriesViewOwn, PermSurgeriesCreate,
		PermSurgeriesUpdate, PermSurgeriesPerform,
		PermBillingViewAll, PermBillingViewOwn, PermBillingCreateInvoice,
		PermBillingProcessPayment,
		PermMedicalHistoryViewAll, PermMedicalHistoryViewOwn, PermMedicalHistoryCreate,
		PermRoomsManage, PermRoomsView, PermEquipmentView, PermEquipmentManage,
		PermUsersManage, PermAuditView, PermAuditExport,
	}
}
