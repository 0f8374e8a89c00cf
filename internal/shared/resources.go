package shared

// Protected resources of the worksite application.
const (
	ResourceProject        = "project"
	ResourceTask           = "task"
	ResourceInventory      = "inventory"
	ResourceDocuments      = "documents"
	ResourceAttendance     = "attendance"
	ResourceAdministration = "administration"
	ResourceSettings       = "settings"
)

// Actions understood by the default policy. Attendance, administration and
// settings use the read/update vocabulary, the rest use show/edit.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionShow   = "show"
	ActionList   = "list"
	ActionRead   = "read"
	ActionUpdate = "update"
)

// Actions lists every action of the default policy.
func Actions() []string {
	return []string{
		ActionCreate,
		ActionEdit,
		ActionDelete,
		ActionShow,
		ActionList,
		ActionRead,
		ActionUpdate,
	}
}

// Roles assigned through company membership.
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// Resources lists every protected resource.
func Resources() []string {
	return []string{
		ResourceProject,
		ResourceTask,
		ResourceInventory,
		ResourceDocuments,
		ResourceAttendance,
		ResourceAdministration,
		ResourceSettings,
	}
}
