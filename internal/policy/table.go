package policy

import "github.com/jwalitptl/admin-authz/internal/model"

// Table is the declarative role -> permission listing the registry is built
// from.
type Table map[model.Role][]model.Permission

// DefaultTable is the production policy.
func DefaultTable() Table {
	return Table{
		model.RoleClinician: {
			model.PermPatientsViewAll,
			model.PermPatientsCreate,
			model.PermPatientsUpdate,
			model.PermAppointmentsViewAll,
			model.PermAppointmentsCreate,
			model.PermAppointmentsUpdate,
			model.PermAppointmentsCancel,
			model.PermPrescriptionsViewAll,
			model.PermPrescriptionsCreate,
			model.PermPrescriptionsApproveRefill,
			model.PermSurgeriesViewAll,
			model.PermSurgeriesCreate,
			model.PermSurgeriesUpdate,
			model.PermSurgeriesPerform,
			model.PermBillingViewAll,
			model.PermMedicalHistoryViewAll,
			model.PermMedicalHistoryCreate,
			model.PermRoomsView,
			model.PermEquipmentView,
		},
		model.RoleReceptionist: {
			model.PermPatientsViewAll,
			model.PermPatientsCreate,
			model.PermPatientsUpdate,
			model.PermAppointmentsViewAll,
			model.PermAppointmentsCreate,
			model.PermAppointmentsUpdate,
			model.PermAppointmentsCancel,
			model.PermAppointmentsCheckin,
			model.PermSurgeriesViewAll,
			model.PermBillingViewAll,
			model.PermBillingCreateInvoice,
			model.PermBillingProcessPayment,
			model.PermRoomsView,
			model.PermRoomsManage,
			model.PermEquipmentView,
			model.PermEquipmentManage,
		},
		model.RolePatient: {
			model.PermPatientsViewOwn,
			model.PermPatientsUpdateOwn,
			model.PermAppointmentsViewOwn,
			model.PermAppointmentsCreate,
			model.PermAppointmentsCancelOwn,
			model.PermPrescriptionsViewOwn,
			model.PermPrescriptionsRequestRefill,
			model.PermSurgeriesViewOwn,
			model.PermBillingViewOwn,
			model.PermMedicalHistoryViewOwn,
		},
		// Admin additionally receives every registered permission at build.
		model.RoleAdmin: {
			model.PermPatientsDelete,
			model.PermUsersManage,
			model.PermAuditView,
			model.PermAuditExport,
		},
	}
}

// legacyAliases maps names from the old bare-string policy registrations to
// their canonical permission.
var legacyAliases = map[string]model.Permission{
	"ViewPatients":        model.PermPatientsViewAll,
	"ViewOwnPatient":      model.PermPatientsViewOwn,
	"CreatePatient":       model.PermPatientsCreate,
	"EditPatient":         model.PermPatientsUpdate,
	"DeletePatient":       model.PermPatientsDelete,
	"ViewAppointments":    model.PermAppointmentsViewAll,
	"BookAppointment":     model.PermAppointmentsCreate,
	"CheckInAppointment":  model.PermAppointmentsCheckin,
	"CreatePrescription":  model.PermPrescriptionsCreate,
	"ApproveRefill":       model.PermPrescriptionsApproveRefill,
	"RequestRefill":       model.PermPrescriptionsRequestRefill,
	"ScheduleSurgery":     model.PermSurgeriesCreate,
	"PerformSurgery":      model.PermSurgeriesPerform,
	"CreateInvoice":       model.PermBillingCreateInvoice,
	"ProcessPayment":      model.PermBillingProcessPayment,
	"ManageRooms":         model.PermRoomsManage,
	"ManageUsers":         model.PermUsersManage,
	"ViewAuditLogs":       model.PermAuditView,
	"ExportAuditLogs":     model.PermAuditExport,
	"patients.view":       model.PermPatientsViewAll,
	"prescriptions.write": model.PermPrescriptionsCreate,
}

// legacyRolePolicies are the old role-string policies. Each expands to the
// named role's permission set.
var legacyRolePolicies = map[string]model.Role{
	"AdminOnly":        model.RoleAdmin,
	"ClinicianOnly":    model.RoleClinician,
	"ReceptionistOnly": model.RoleReceptionist,
	"PatientOnly":      model.RolePatient,
}
