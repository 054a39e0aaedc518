package auth

// TaskRef carries the ownership fields the task policies look at.
type TaskRef struct {
	CreatedBy  string
	AssignedTo string
}

// CanCompleteTask reports whether p may move the task into the completed state.
// Only the current assignee can, admins included.
func CanCompleteTask(p Principal, task TaskRef) bool {
	return p.ID != "" && p.ID == task.AssignedTo
}

// CanDeleteTask reports whether p may delete the task.
func CanDeleteTask(p Principal, task TaskRef) bool {
	if p.ID == "" {
		return false
	}
	return p.IsAdmin() || p.ID == task.CreatedBy
}

// CanManageUsers governs listing accounts and changing their status.
func CanManageUsers(p Principal) bool {
	return p.ID != "" && p.IsAdmin()
}
