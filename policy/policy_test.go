package policy

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lexnexy/config"
	"lexnexy/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// a single connection keeps the in-memory database alive
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.MigrateDB(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "x",
		Name:         email,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedMember(t *testing.T, db *gorm.DB, firmID uint, user *models.User, role, status string) *models.FirmMember {
	t.Helper()
	member := &models.FirmMember{
		LawFirmID: firmID,
		UserID:    &user.ID,
		Role:      role,
		Status:    status,
	}
	require.NoError(t, db.Create(member).Error)
	return member
}

func seedFirm(t *testing.T, db *gorm.DB, name string) *models.LawFirm {
	t.Helper()
	firm := &models.LawFirm{Name: name}
	require.NoError(t, db.Create(firm).Error)
	return firm
}

func TestCanDeniesWithoutActiveMembership(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firm := seedFirm(t, db, "Smith & Partners")
	outsider := seedUser(t, db, "outsider@example.com")
	inactive := seedUser(t, db, "inactive@example.com")
	invited := seedUser(t, db, "invited@example.com")
	seedMember(t, db, firm.ID, inactive, models.MemberRoleAdmin, models.MemberStatusInactive)
	seedMember(t, db, firm.ID, invited, models.MemberRoleAdmin, models.MemberStatusInvited)

	res := FirmResource{Firm: firm}
	for _, user := range []*models.User{outsider, inactive, invited} {
		require.False(t, engine.Can(user.ID, ActionView, res), "user %s", user.Email)
		require.False(t, engine.Can(user.ID, ActionInviteMembers, res))
		require.False(t, engine.Can(user.ID, ActionUpdate, res))
	}
}

func TestCanDeniesAcrossFirms(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firmA := seedFirm(t, db, "Firm A")
	firmB := seedFirm(t, db, "Firm B")
	admin := seedUser(t, db, "admin@a.com")
	seedMember(t, db, firmA.ID, admin, models.MemberRoleAdmin, models.MemberStatusActive)

	// an admin of firm A has no standing whatsoever in firm B
	require.True(t, engine.Can(admin.ID, ActionUpdate, FirmResource{Firm: firmA}))
	require.False(t, engine.Can(admin.ID, ActionView, FirmResource{Firm: firmB}))
	require.False(t, engine.Can(admin.ID, ActionUpdate, FirmResource{Firm: firmB}))
}

func TestFirmActionsByRole(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firm := seedFirm(t, db, "Roles LLP")
	users := map[string]*models.User{}
	for _, role := range []string{models.MemberRoleAdmin, models.MemberRoleAttorney, models.MemberRoleStaff} {
		user := seedUser(t, db, fmt.Sprintf("%s@roles.com", role))
		seedMember(t, db, firm.ID, user, role, models.MemberStatusActive)
		users[role] = user
	}

	res := FirmResource{Firm: firm}

	tests := []struct {
		action   Action
		admin    bool
		attorney bool
		staff    bool
	}{
		{ActionView, true, true, true},
		{ActionViewMembers, true, true, true},
		{ActionViewClients, true, true, true},
		{ActionCreateClient, true, true, true},
		{ActionCreateTask, true, true, true},
		{ActionInviteMembers, true, true, false},
		{ActionCreateCase, true, true, false},
		{ActionUpdate, true, false, false},
		{ActionDelete, true, false, false},
		{ActionAnnounce, true, false, false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.admin, engine.Can(users[models.MemberRoleAdmin].ID, tt.action, res), "admin %s", tt.action)
		require.Equal(t, tt.attorney, engine.Can(users[models.MemberRoleAttorney].ID, tt.action, res), "attorney %s", tt.action)
		require.Equal(t, tt.staff, engine.Can(users[models.MemberRoleStaff].ID, tt.action, res), "staff %s", tt.action)
	}
}

func TestCaseAccess(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firm := seedFirm(t, db, "Case Firm")

	admin := seedUser(t, db, "admin@case.com")
	creator := seedUser(t, db, "creator@case.com")
	lead := seedUser(t, db, "lead@case.com")
	associate := seedUser(t, db, "associate@case.com")
	paralegal := seedUser(t, db, "paralegal@case.com")
	bystander := seedUser(t, db, "bystander@case.com")

	seedMember(t, db, firm.ID, admin, models.MemberRoleAdmin, models.MemberStatusActive)
	creatorMember := seedMember(t, db, firm.ID, creator, models.MemberRoleAttorney, models.MemberStatusActive)
	leadMember := seedMember(t, db, firm.ID, lead, models.MemberRoleAttorney, models.MemberStatusActive)
	associateMember := seedMember(t, db, firm.ID, associate, models.MemberRoleAttorney, models.MemberStatusActive)
	paralegalMember := seedMember(t, db, firm.ID, paralegal, models.MemberRoleStaff, models.MemberStatusActive)
	seedMember(t, db, firm.ID, bystander, models.MemberRoleAttorney, models.MemberStatusActive)

	legalCase := &models.LegalCase{
		UserID:    creator.ID,
		LawFirmID: firm.ID,
		Title:     "Estate of Doe",
		Status:    models.CaseStatusActive,
	}
	require.NoError(t, db.Create(legalCase).Error)

	for member, role := range map[*models.FirmMember]string{
		leadMember:      models.AssignmentRoleLead,
		associateMember: models.AssignmentRoleAssociate,
		paralegalMember: models.AssignmentRoleParalegal,
	} {
		require.NoError(t, db.Create(&models.CaseAssignment{
			LegalCaseID:  legalCase.ID,
			FirmMemberID: member.ID,
			Role:         role,
		}).Error)
	}
	_ = creatorMember

	res := CaseResource{Case: legalCase}

	// view: admin, creator, any team member; not bystanders
	require.True(t, engine.Can(admin.ID, ActionView, res))
	require.True(t, engine.Can(creator.ID, ActionView, res))
	require.True(t, engine.Can(lead.ID, ActionView, res))
	require.True(t, engine.Can(paralegal.ID, ActionView, res))
	require.False(t, engine.Can(bystander.ID, ActionView, res))

	// update: admin, or attorney with a lead/associate seat
	require.True(t, engine.Can(admin.ID, ActionUpdate, res))
	require.True(t, engine.Can(lead.ID, ActionUpdate, res))
	require.True(t, engine.Can(associate.ID, ActionUpdate, res))
	require.False(t, engine.Can(paralegal.ID, ActionUpdate, res))
	require.False(t, engine.Can(bystander.ID, ActionUpdate, res))

	// delete: admin only, even the lead attorney is refused
	require.True(t, engine.Can(admin.ID, ActionDelete, res))
	require.False(t, engine.Can(lead.ID, ActionDelete, res))
	require.False(t, engine.Can(creator.ID, ActionDelete, res))
}

func TestTaskAccess(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firm := seedFirm(t, db, "Task Firm")

	admin := seedUser(t, db, "admin@task.com")
	creator := seedUser(t, db, "creator@task.com")
	assignee := seedUser(t, db, "assignee@task.com")
	lead := seedUser(t, db, "lead@task.com")
	teammate := seedUser(t, db, "teammate@task.com")
	bystander := seedUser(t, db, "bystander@task.com")

	seedMember(t, db, firm.ID, admin, models.MemberRoleAdmin, models.MemberStatusActive)
	creatorMember := seedMember(t, db, firm.ID, creator, models.MemberRoleStaff, models.MemberStatusActive)
	assigneeMember := seedMember(t, db, firm.ID, assignee, models.MemberRoleStaff, models.MemberStatusActive)
	leadMember := seedMember(t, db, firm.ID, lead, models.MemberRoleAttorney, models.MemberStatusActive)
	teammateMember := seedMember(t, db, firm.ID, teammate, models.MemberRoleStaff, models.MemberStatusActive)
	seedMember(t, db, firm.ID, bystander, models.MemberRoleStaff, models.MemberStatusActive)

	legalCase := &models.LegalCase{
		UserID:    lead.ID,
		LawFirmID: firm.ID,
		Title:     "Acme v. Zenith",
		Status:    models.CaseStatusActive,
	}
	require.NoError(t, db.Create(legalCase).Error)

	require.NoError(t, db.Create(&models.CaseAssignment{
		LegalCaseID: legalCase.ID, FirmMemberID: leadMember.ID, Role: models.AssignmentRoleLead,
	}).Error)
	require.NoError(t, db.Create(&models.CaseAssignment{
		LegalCaseID: legalCase.ID, FirmMemberID: teammateMember.ID, Role: models.AssignmentRoleSupport,
	}).Error)

	task := &models.Task{
		LawFirmID:   firm.ID,
		LegalCaseID: &legalCase.ID,
		AssignedTo:  &assigneeMember.ID,
		CreatedBy:   &creatorMember.ID,
		Title:       "File motion",
		Priority:    models.TaskPriorityHigh,
		Status:      models.TaskStatusPending,
	}
	require.NoError(t, db.Create(task).Error)

	res := TaskResource{Task: task}

	// view: admin, creator, assignee, anyone on the case team
	require.True(t, engine.Can(admin.ID, ActionView, res))
	require.True(t, engine.Can(creator.ID, ActionView, res))
	require.True(t, engine.Can(assignee.ID, ActionView, res))
	require.True(t, engine.Can(teammate.ID, ActionView, res))
	require.False(t, engine.Can(bystander.ID, ActionView, res))

	// update: admin, creator, assignee, lead attorney of the case
	require.True(t, engine.Can(creator.ID, ActionUpdate, res))
	require.True(t, engine.Can(assignee.ID, ActionUpdate, res))
	require.True(t, engine.Can(lead.ID, ActionUpdate, res))
	require.False(t, engine.Can(teammate.ID, ActionUpdate, res))

	// delete: admin, creator, lead attorney, but never the mere assignee
	require.True(t, engine.Can(admin.ID, ActionDelete, res))
	require.True(t, engine.Can(creator.ID, ActionDelete, res))
	require.True(t, engine.Can(lead.ID, ActionDelete, res))
	require.False(t, engine.Can(assignee.ID, ActionDelete, res))
}

func TestTaskWithoutCaseLimitsAccessToParticipants(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firm := seedFirm(t, db, "Solo Task Firm")
	creator := seedUser(t, db, "creator@solo.com")
	other := seedUser(t, db, "other@solo.com")
	creatorMember := seedMember(t, db, firm.ID, creator, models.MemberRoleStaff, models.MemberStatusActive)
	seedMember(t, db, firm.ID, other, models.MemberRoleAttorney, models.MemberStatusActive)

	task := &models.Task{
		LawFirmID: firm.ID,
		CreatedBy: &creatorMember.ID,
		Title:     "Order supplies",
		Priority:  models.TaskPriorityLow,
		Status:    models.TaskStatusPending,
	}
	require.NoError(t, db.Create(task).Error)

	res := TaskResource{Task: task}
	require.True(t, engine.Can(creator.ID, ActionView, res))
	require.False(t, engine.Can(other.ID, ActionView, res))
	require.False(t, engine.Can(other.ID, ActionUpdate, res))
}

func TestMemberRules(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)

	firm := seedFirm(t, db, "Member Firm")
	admin := seedUser(t, db, "admin@member.com")
	attorney := seedUser(t, db, "attorney@member.com")
	adminMember := seedMember(t, db, firm.ID, admin, models.MemberRoleAdmin, models.MemberStatusActive)
	attorneyMember := seedMember(t, db, firm.ID, attorney, models.MemberRoleAttorney, models.MemberStatusActive)

	require.True(t, engine.Can(admin.ID, ActionUpdate, MemberResource{Member: attorneyMember}))
	require.True(t, engine.Can(admin.ID, ActionDelete, MemberResource{Member: attorneyMember}))
	require.False(t, engine.Can(attorney.ID, ActionUpdate, MemberResource{Member: adminMember}))
	require.False(t, engine.Can(attorney.ID, ActionDelete, MemberResource{Member: adminMember}))

	// self-removal is refused even for admins
	require.False(t, engine.Can(admin.ID, ActionDelete, MemberResource{Member: adminMember}))
	require.True(t, engine.Can(admin.ID, ActionUpdate, MemberResource{Member: adminMember}))
}
