// Package policy is the authorization engine: a deterministic, side-effect
// free decision function over the current membership and case-team state.
// It answers allow/deny only; business-rule invariants such as the admin
// floor are pre-commit checks owned by the mutation path, not by policy.
package policy

import (
	"gorm.io/gorm"

	"lexnexy/models"
)

// Action names a capability being requested against a resource.
type Action string

const (
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// Firm-scope actions
	ActionViewMembers   Action = "view_members"
	ActionInviteMembers Action = "invite_members"
	ActionViewClients   Action = "view_clients"
	ActionCreateClient  Action = "create_client"
	ActionViewCases     Action = "view_cases"
	ActionCreateCase    Action = "create_case"
	ActionViewTasks     Action = "view_tasks"
	ActionCreateTask    Action = "create_task"
	ActionAnnounce      Action = "announce"
)

// Resource is the closed set of things an action can target. Each variant
// carries the loaded resource handle; policy never fetches the resource
// itself, only the membership/assignment state around it.
type Resource interface {
	firmID() uint
}

type FirmResource struct{ Firm *models.LawFirm }

type MemberResource struct{ Member *models.FirmMember }

type ClientResource struct{ Client *models.Client }

type CaseResource struct{ Case *models.LegalCase }

type TaskResource struct{ Task *models.Task }

func (r FirmResource) firmID() uint   { return r.Firm.ID }
func (r MemberResource) firmID() uint { return r.Member.LawFirmID }
func (r ClientResource) firmID() uint { return r.Client.LawFirmID }
func (r CaseResource) firmID() uint   { return r.Case.LawFirmID }
func (r TaskResource) firmID() uint   { return r.Task.LawFirmID }

// Engine resolves the actor's membership and dispatches to the rule set for
// the resource variant. It only ever reads state.
type Engine struct {
	DB *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{DB: db}
}

// Can reports whether the user may perform action on the resource. A user
// without an active membership in the resource's firm is denied
// unconditionally, whatever the action.
func (e *Engine) Can(userID uint, action Action, res Resource) bool {
	member, err := models.ActiveMemberOf(e.DB, userID, res.firmID())
	if err != nil {
		return false
	}

	switch r := res.(type) {
	case FirmResource:
		return decideFirm(member, action)
	case MemberResource:
		return decideMember(member, action, r.Member)
	case ClientResource:
		return decideClient(member, action)
	case CaseResource:
		return e.decideCase(member, action, r.Case)
	case TaskResource:
		return e.decideTask(member, action, r.Task)
	}
	return false
}

func decideFirm(member *models.FirmMember, action Action) bool {
	switch action {
	case ActionView, ActionViewMembers, ActionViewClients, ActionViewCases,
		ActionViewTasks, ActionCreateTask:
		// any active membership
		return true
	case ActionCreateClient:
		return member.IsAdmin() || member.IsAttorney() || member.IsStaff()
	case ActionInviteMembers, ActionCreateCase:
		return member.IsAdmin() || member.IsAttorney()
	case ActionUpdate, ActionDelete, ActionAnnounce:
		return member.IsAdmin()
	}
	return false
}

func decideMember(actor *models.FirmMember, action Action, target *models.FirmMember) bool {
	switch action {
	case ActionView:
		return true
	case ActionUpdate:
		return actor.IsAdmin()
	case ActionDelete:
		// admins may not remove themselves through this path
		return actor.IsAdmin() && actor.ID != target.ID
	}
	return false
}

func decideClient(member *models.FirmMember, action Action) bool {
	switch action {
	case ActionView:
		return true
	case ActionUpdate:
		return member.IsAdmin() || member.IsAttorney()
	case ActionDelete:
		return member.IsAdmin()
	}
	return false
}

func (e *Engine) decideCase(member *models.FirmMember, action Action, legalCase *models.LegalCase) bool {
	if member.IsAdmin() {
		return true
	}

	switch action {
	case ActionView:
		if member.UserID != nil && legalCase.UserID == *member.UserID {
			return true
		}
		return e.onTeam(legalCase.ID, member.ID)
	case ActionUpdate:
		if !member.IsAttorney() {
			return false
		}
		return e.onTeam(legalCase.ID, member.ID,
			models.AssignmentRoleLead, models.AssignmentRoleAssociate)
	case ActionDelete:
		return false
	}
	return false
}

func (e *Engine) decideTask(member *models.FirmMember, action Action, task *models.Task) bool {
	if member.IsAdmin() {
		return true
	}

	isCreator := task.CreatedBy != nil && *task.CreatedBy == member.ID
	isAssignee := task.AssignedTo != nil && *task.AssignedTo == member.ID

	switch action {
	case ActionView:
		if isCreator || isAssignee {
			return true
		}
		if task.LegalCaseID != nil {
			return e.onTeam(*task.LegalCaseID, member.ID)
		}
		return false
	case ActionUpdate:
		if isCreator || isAssignee {
			return true
		}
		return e.isLeadAttorney(member, task)
	case ActionDelete:
		if isCreator {
			return true
		}
		return e.isLeadAttorney(member, task)
	}
	return false
}

func (e *Engine) isLeadAttorney(member *models.FirmMember, task *models.Task) bool {
	if task.LegalCaseID == nil || !member.IsAttorney() {
		return false
	}
	return e.onTeam(*task.LegalCaseID, member.ID, models.AssignmentRoleLead)
}

// onTeam reports whether the member holds a team assignment on the case,
// optionally restricted to the given roles.
func (e *Engine) onTeam(caseID, memberID uint, roles ...string) bool {
	query := e.DB.Model(&models.CaseAssignment{}).
		Where("legal_case_id = ? AND firm_member_id = ?", caseID, memberID)
	if len(roles) > 0 {
		query = query.Where("role IN ?", roles)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}
