package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lexnexy/config"
	"lexnexy/middleware"
	"lexnexy/models"
	"lexnexy/utils"
)

// setupTestApp wires the auth, firm and member routes against an in-memory
// database. The notifier runs without delivery channels and the mailer has no
// SMTP host, so invitation emails fail and get logged, which is exactly the
// best-effort behavior the handlers promise.
func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
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

	config.DB = db
	config.AppConfig.EncryptionKey = "test-secret"
	config.AppConfig.Redis.Enabled = false

	quiet := log.New(io.Discard, "", 0)
	structured := logrus.New()
	structured.SetOutput(io.Discard)

	notifier := utils.NewNotifier(db, structured, nil, nil, nil)
	mailer := utils.NewMailer()

	firmController := NewFirmController(db, quiet)
	memberController := NewMemberController(db, quiet, mailer, notifier)

	app := fiber.New()
	app.Post("/auth/register", Register)

	invitations := app.Group("/invitations")
	invitations.Get("/:token", memberController.GetInvitation)
	invitations.Post("/:token/accept", middleware.Protected(), memberController.AcceptInvitation)

	api := app.Group("/api/v1", middleware.Protected())
	api.Post("/firms", firmController.CreateFirm)
	api.Delete("/firms/:id", firmController.DeleteFirm)
	api.Get("/firms/:id/members", memberController.ListMembers)
	api.Post("/firms/:id/members/invite", memberController.InviteMember)
	api.Put("/firms/:id/members/:memberID", memberController.UpdateMember)
	api.Delete("/firms/:id/members/:memberID", memberController.RemoveMember)

	return app, db
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// registerUser creates an account over HTTP and returns its access token.
func registerUser(t *testing.T, app *fiber.App, email string) (string, map[string]interface{}) {
	t.Helper()

	resp := doRequest(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"email":    email,
		"password": "password123",
		"name":     email,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	data := body["data"].(map[string]interface{})
	return data["access_token"].(string), data
}

// createFirm creates a firm over HTTP, making the caller its founding admin.
func createFirm(t *testing.T, app *fiber.App, token, name string) uint {
	t.Helper()

	resp := doRequest(t, app, fiber.MethodPost, "/api/v1/firms", token, fiber.Map{"name": name})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	data := body["data"].(map[string]interface{})
	return uint(data["ID"].(float64))
}

// inviteToken pulls the pending invitation token for an address straight from
// the database, the way the emailed link would carry it.
func inviteToken(t *testing.T, db *gorm.DB, firmID uint, email string) string {
	t.Helper()

	var member models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND invitation_email = ?", firmID, email).
		First(&member).Error)
	require.NotNil(t, member.InvitationToken)
	return *member.InvitationToken
}

func TestInvitationLifecycle(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, _ := registerUser(t, app, "admin@lifecycle.com")
	firmID := createFirm(t, app, adminToken, "Lifecycle LLP")

	resp := doRequest(t, app, fiber.MethodPost,
		fmt.Sprintf("/api/v1/firms/%d/members/invite", firmID), adminToken, fiber.Map{
			"email": "associate@lifecycle.com",
			"role":  models.MemberRoleAttorney,
		})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	token := inviteToken(t, db, firmID, "associate@lifecycle.com")

	// the public preview shows the firm without requiring an account
	resp = doRequest(t, app, fiber.MethodGet, "/invitations/"+token, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	preview := decodeBody(t, resp)["data"].(map[string]interface{})
	require.Equal(t, "Lifecycle LLP", preview["firm_name"])
	require.Equal(t, models.MemberRoleAttorney, preview["role"])

	inviteeToken, _ := registerUser(t, app, "associate@lifecycle.com")

	resp = doRequest(t, app, fiber.MethodPost, "/invitations/"+token+"/accept", inviteeToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	accepted := decodeBody(t, resp)["data"].(map[string]interface{})
	require.Equal(t, models.MemberStatusActive, accepted["status"])

	var member models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND invitation_email = ?", firmID, "associate@lifecycle.com").
		First(&member).Error)
	require.Equal(t, models.MemberStatusActive, member.Status)
	require.NotNil(t, member.UserID)
	require.Nil(t, member.InvitationToken)
	require.NotNil(t, member.InvitationAcceptedAt)

	// a spent token reads exactly like one that never existed
	resp = doRequest(t, app, fiber.MethodPost, "/invitations/"+token+"/accept", inviteeToken, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Invalid or already used invitation", decodeBody(t, resp)["error"])

	resp = doRequest(t, app, fiber.MethodGet, "/invitations/"+token, "", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestInviteRequiresPrivilege(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, _ := registerUser(t, app, "admin@privilege.com")
	firmID := createFirm(t, app, adminToken, "Privilege LLP")

	staffToken, staffData := registerUser(t, app, "staff@privilege.com")
	staffID := uint(staffData["user"].(map[string]interface{})["ID"].(float64))
	require.NoError(t, db.Create(&models.FirmMember{
		LawFirmID: firmID,
		UserID:    &staffID,
		Role:      models.MemberRoleStaff,
		Status:    models.MemberStatusActive,
	}).Error)

	resp := doRequest(t, app, fiber.MethodPost,
		fmt.Sprintf("/api/v1/firms/%d/members/invite", firmID), staffToken, fiber.Map{
			"email": "someone@privilege.com",
			"role":  models.MemberRoleStaff,
		})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// outsiders cannot even see the member list
	outsiderToken, _ := registerUser(t, app, "outsider@privilege.com")
	resp = doRequest(t, app, fiber.MethodGet,
		fmt.Sprintf("/api/v1/firms/%d/members", firmID), outsiderToken, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestInviteDuplicates(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, _ := registerUser(t, app, "admin@dupes.com")
	firmID := createFirm(t, app, adminToken, "Duplicates LLP")

	invitePath := fmt.Sprintf("/api/v1/firms/%d/members/invite", firmID)

	resp := doRequest(t, app, fiber.MethodPost, invitePath, adminToken, fiber.Map{
		"email": "pending@dupes.com",
		"role":  models.MemberRoleStaff,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// a second invite to the same address while one is pending
	resp = doRequest(t, app, fiber.MethodPost, invitePath, adminToken, fiber.Map{
		"email": "pending@dupes.com",
		"role":  models.MemberRoleAttorney,
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// inviting someone who is already an active member
	_, memberData := registerUser(t, app, "already@dupes.com")
	memberID := uint(memberData["user"].(map[string]interface{})["ID"].(float64))
	require.NoError(t, db.Create(&models.FirmMember{
		LawFirmID: firmID,
		UserID:    &memberID,
		Role:      models.MemberRoleStaff,
		Status:    models.MemberStatusActive,
	}).Error)

	resp = doRequest(t, app, fiber.MethodPost, invitePath, adminToken, fiber.Map{
		"email": "already@dupes.com",
		"role":  models.MemberRoleStaff,
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterWithInvitationToken(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, _ := registerUser(t, app, "admin@deferred.com")
	firmID := createFirm(t, app, adminToken, "Deferred LLP")

	resp := doRequest(t, app, fiber.MethodPost,
		fmt.Sprintf("/api/v1/firms/%d/members/invite", firmID), adminToken, fiber.Map{
			"email": "newhire@deferred.com",
			"role":  models.MemberRoleStaff,
		})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	token := inviteToken(t, db, firmID, "newhire@deferred.com")

	// registration carries the token and the membership activates in one step
	resp = doRequest(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"email":            "newhire@deferred.com",
		"password":         "password123",
		"name":             "New Hire",
		"invitation_token": token,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := decodeBody(t, resp)["data"].(map[string]interface{})
	require.Equal(t, true, data["invitation_accepted"])

	var member models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND invitation_email = ?", firmID, "newhire@deferred.com").
		First(&member).Error)
	require.Equal(t, models.MemberStatusActive, member.Status)

	// the token is spent; carrying it again does not fail the registration
	resp = doRequest(t, app, fiber.MethodPost, "/auth/register", "", fiber.Map{
		"email":            "latecomer@deferred.com",
		"password":         "password123",
		"name":             "Latecomer",
		"invitation_token": token,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data = decodeBody(t, resp)["data"].(map[string]interface{})
	require.Equal(t, false, data["invitation_accepted"])
}

func TestDemotingLastAdminRefused(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, adminData := registerUser(t, app, "solo@floor.com")
	adminID := uint(adminData["user"].(map[string]interface{})["ID"].(float64))
	firmID := createFirm(t, app, adminToken, "Floor LLP")

	var solo models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND user_id = ?", firmID, adminID).
		First(&solo).Error)

	resp := doRequest(t, app, fiber.MethodPut,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, solo.ID), adminToken, fiber.Map{
			"role": models.MemberRoleStaff,
		})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, models.ErrLastAdmin.Error(), decodeBody(t, resp)["error"])

	// the membership is untouched
	require.NoError(t, db.First(&solo, solo.ID).Error)
	require.Equal(t, models.MemberRoleAdmin, solo.Role)

	// with a second active admin the same demotion goes through
	_, secondData := registerUser(t, app, "second@floor.com")
	secondID := uint(secondData["user"].(map[string]interface{})["ID"].(float64))
	require.NoError(t, db.Create(&models.FirmMember{
		LawFirmID: firmID,
		UserID:    &secondID,
		Role:      models.MemberRoleAdmin,
		Status:    models.MemberStatusActive,
	}).Error)

	resp = doRequest(t, app, fiber.MethodPut,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, solo.ID), adminToken, fiber.Map{
			"role": models.MemberRoleAttorney,
		})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, db.First(&solo, solo.ID).Error)
	require.Equal(t, models.MemberRoleAttorney, solo.Role)
}

func TestRemoveMemberRules(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, adminData := registerUser(t, app, "admin@removal.com")
	adminID := uint(adminData["user"].(map[string]interface{})["ID"].(float64))
	firmID := createFirm(t, app, adminToken, "Removal LLP")

	var adminMember models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND user_id = ?", firmID, adminID).
		First(&adminMember).Error)

	// admins cannot remove themselves
	resp := doRequest(t, app, fiber.MethodDelete,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, adminMember.ID), adminToken, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	_, staffData := registerUser(t, app, "staff@removal.com")
	staffID := uint(staffData["user"].(map[string]interface{})["ID"].(float64))
	staffMember := models.FirmMember{
		LawFirmID: firmID,
		UserID:    &staffID,
		Role:      models.MemberRoleStaff,
		Status:    models.MemberStatusActive,
	}
	require.NoError(t, db.Create(&staffMember).Error)

	resp = doRequest(t, app, fiber.MethodDelete,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, staffMember.ID), adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	err := db.First(&models.FirmMember{}, staffMember.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReinviteAfterRemoval(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, _ := registerUser(t, app, "admin@rejoin.com")
	firmID := createFirm(t, app, adminToken, "Rejoin LLP")
	invitePath := fmt.Sprintf("/api/v1/firms/%d/members/invite", firmID)

	returnerToken, _ := registerUser(t, app, "returner@rejoin.com")

	resp := doRequest(t, app, fiber.MethodPost, invitePath, adminToken, fiber.Map{
		"email": "returner@rejoin.com",
		"role":  models.MemberRoleStaff,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	token := inviteToken(t, db, firmID, "returner@rejoin.com")
	resp = doRequest(t, app, fiber.MethodPost, "/invitations/"+token+"/accept", returnerToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var member models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND invitation_email = ?", firmID, "returner@rejoin.com").
		First(&member).Error)

	resp = doRequest(t, app, fiber.MethodDelete,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, member.ID), adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// the removed membership must not block a fresh invitation to the same
	// person
	resp = doRequest(t, app, fiber.MethodPost, invitePath, adminToken, fiber.Map{
		"email": "returner@rejoin.com",
		"role":  models.MemberRoleStaff,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	token = inviteToken(t, db, firmID, "returner@rejoin.com")
	resp = doRequest(t, app, fiber.MethodPost, "/invitations/"+token+"/accept", returnerToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	rejoined := decodeBody(t, resp)["data"].(map[string]interface{})
	require.Equal(t, models.MemberStatusActive, rejoined["status"])
}

func TestAcceptingSecondInvitationInSameFirmConflicts(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, _ := registerUser(t, app, "admin@twice.com")
	firmID := createFirm(t, app, adminToken, "Twice LLP")
	invitePath := fmt.Sprintf("/api/v1/firms/%d/members/invite", firmID)

	// two pending invitations to different addresses; the tokens are bearer
	// credentials, so one account can try to spend both
	for _, email := range []string{"first@twice.com", "second@twice.com"} {
		resp := doRequest(t, app, fiber.MethodPost, invitePath, adminToken, fiber.Map{
			"email": email,
			"role":  models.MemberRoleStaff,
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	joinerToken, _ := registerUser(t, app, "joiner@twice.com")

	token := inviteToken(t, db, firmID, "first@twice.com")
	resp := doRequest(t, app, fiber.MethodPost, "/invitations/"+token+"/accept", joinerToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	token = inviteToken(t, db, firmID, "second@twice.com")
	resp = doRequest(t, app, fiber.MethodPost, "/invitations/"+token+"/accept", joinerToken, nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "You are already a member of this firm", decodeBody(t, resp)["error"])
}

func TestDeactivatingMembers(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, adminData := registerUser(t, app, "admin@standby.com")
	adminID := uint(adminData["user"].(map[string]interface{})["ID"].(float64))
	firmID := createFirm(t, app, adminToken, "Standby LLP")

	_, staffData := registerUser(t, app, "staff@standby.com")
	staffID := uint(staffData["user"].(map[string]interface{})["ID"].(float64))
	staffMember := models.FirmMember{
		LawFirmID: firmID,
		UserID:    &staffID,
		Role:      models.MemberRoleStaff,
		Status:    models.MemberStatusActive,
	}
	require.NoError(t, db.Create(&staffMember).Error)

	memberPath := fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, staffMember.ID)

	resp := doRequest(t, app, fiber.MethodPut, memberPath, adminToken, fiber.Map{
		"status": models.MemberStatusInactive,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, db.First(&staffMember, staffMember.ID).Error)
	require.Equal(t, models.MemberStatusInactive, staffMember.Status)

	// reactivation is the same admin write in reverse
	resp = doRequest(t, app, fiber.MethodPut, memberPath, adminToken, fiber.Map{
		"status": models.MemberStatusActive,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, db.First(&staffMember, staffMember.ID).Error)
	require.Equal(t, models.MemberStatusActive, staffMember.Status)

	// deactivating the sole active admin hits the same floor as demotion
	var adminMember models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND user_id = ?", firmID, adminID).
		First(&adminMember).Error)

	resp = doRequest(t, app, fiber.MethodPut,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, adminMember.ID), adminToken, fiber.Map{
			"status": models.MemberStatusInactive,
		})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, models.ErrLastAdmin.Error(), decodeBody(t, resp)["error"])

	require.NoError(t, db.First(&adminMember, adminMember.ID).Error)
	require.Equal(t, models.MemberStatusActive, adminMember.Status)
}

func TestMemberMutationsAcrossTenants(t *testing.T) {
	app, db := setupTestApp(t)

	adminToken, adminData := registerUser(t, app, "admin@tenant-a.com")
	adminID := uint(adminData["user"].(map[string]interface{})["ID"].(float64))
	firmID := createFirm(t, app, adminToken, "Tenant A")

	var target models.FirmMember
	require.NoError(t, db.
		Where("law_firm_id = ? AND user_id = ?", firmID, adminID).
		First(&target).Error)

	// an admin of another firm has no standing here and must not learn the
	// member even exists
	rivalToken, _ := registerUser(t, app, "admin@tenant-b.com")
	createFirm(t, app, rivalToken, "Tenant B")

	resp := doRequest(t, app, fiber.MethodPut,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, target.ID), rivalToken, fiber.Map{
			"role": models.MemberRoleStaff,
		})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, app, fiber.MethodDelete,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, target.ID), rivalToken, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// a staff member of the same firm is refused, not hidden from
	staffToken, staffData := registerUser(t, app, "staff@tenant-a.com")
	staffID := uint(staffData["user"].(map[string]interface{})["ID"].(float64))
	require.NoError(t, db.Create(&models.FirmMember{
		LawFirmID: firmID,
		UserID:    &staffID,
		Role:      models.MemberRoleStaff,
		Status:    models.MemberStatusActive,
	}).Error)

	resp = doRequest(t, app, fiber.MethodPut,
		fmt.Sprintf("/api/v1/firms/%d/members/%d", firmID, target.ID), staffToken, fiber.Map{
			"role": models.MemberRoleStaff,
		})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
