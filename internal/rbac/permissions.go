package rbac

// PermSystemAdmin satisfies every permission check. It does not satisfy role checks.
const PermSystemAdmin = "system:admin"

// Donor and appointment permissions.
const (
	PermDonorsView  = "donors:view"
	PermDonorsEdit  = "donors:edit"
	PermDonorsMerge = "donors:merge"

	PermAppointmentsView   = "appointments:view"
	PermAppointmentsManage = "appointments:manage"
)

// DonationScopes lists donor facing permissions.
func DonationScopes() []string {
	return []string{
		PermDonorsView,
		PermDonorsEdit,
		PermDonorsMerge,
		PermAppointmentsView,
		PermAppointmentsManage,
	}
}

// Blood inventory permissions.
const (
	PermInventoryView     = "inventory:view"
	PermInventoryManage   = "inventory:manage"
	PermInventoryTransfer = "inventory:transfer"
)

// InventoryScopes lists blood stock permissions.
func InventoryScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryManage,
		PermInventoryTransfer,
	}
}

// Finance permissions.
const (
	PermFinancialView            = "financial:view"
	PermFinancialApproveExpenses = "financial:approve_expenses"
)

// FinanceScopes lists treasury permissions.
func FinanceScopes() []string {
	return []string{
		PermFinancialView,
		PermFinancialApproveExpenses,
	}
}

// Core platform permissions.
const (
	PermCentersView   = "centers:view"
	PermCentersManage = "centers:manage"
	PermUsersView     = "users:view"
	PermUsersManage   = "users:manage"
	PermReportsView   = "reports:view"
	PermAuditView     = "audit:view"
)

// CoreScopes lists organization and staff administration permissions.
func CoreScopes() []string {
	return []string{
		PermCentersView,
		PermCentersManage,
		PermUsersView,
		PermUsersManage,
		PermReportsView,
		PermAuditView,
		PermSystemAdmin,
	}
}

// Staff role codes.
const (
	RoleSystemAdmin   = "SystemAdmin"
	RolePresident     = "President"
	RoleVicePresident = "VicePresident"
	RoleSecretary     = "Secretary"
	RoleTreasurer     = "Treasurer"
	RoleCoordinator   = "Coordinator"
	RoleNurse         = "Nurse"
	RoleVolunteer     = "Volunteer"
)

// StaffRoles lists every known role code.
func StaffRoles() []string {
	return []string{
		RoleSystemAdmin,
		RolePresident,
		RoleVicePresident,
		RoleSecretary,
		RoleTreasurer,
		RoleCoordinator,
		RoleNurse,
		RoleVolunteer,
	}
}
