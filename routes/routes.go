package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "lexnexy/controllers"
	"lexnexy/middleware"
	"lexnexy/utils"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Get("/me", controller.Me)
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, notifier *utils.Notifier, hub *controller.NotificationHub, analyzer *utils.AnalyzerClient, mailer *utils.Mailer) {
	firmController := controller.NewFirmController(db, log.New(os.Stdout, "FIRM: ", log.LstdFlags))
	memberController := controller.NewMemberController(db, log.New(os.Stdout, "MEMBER: ", log.LstdFlags), mailer, notifier)
	clientController := controller.NewClientController(db, log.New(os.Stdout, "CLIENT: ", log.LstdFlags))
	caseController := controller.NewCaseController(db, log.New(os.Stdout, "CASE: ", log.LstdFlags), notifier)
	taskController := controller.NewTaskController(db, log.New(os.Stdout, "TASK: ", log.LstdFlags), notifier)
	documentController := controller.NewDocumentController(db, log.New(os.Stdout, "DOCUMENT: ", log.LstdFlags), analyzer, notifier)
	chatController := controller.NewChatController(db, log.New(os.Stdout, "CHAT: ", log.LstdFlags), analyzer, notifier)
	knowledgeController := controller.NewKnowledgeController(db, log.New(os.Stdout, "KNOWLEDGE: ", log.LstdFlags), notifier)
	notificationController := controller.NewNotificationController(db, log.New(os.Stdout, "NOTIFY: ", log.LstdFlags), notifier)

	// Invitation landing and acceptance, both rate limited against token
	// guessing. The preview is public; acceptance needs an account.
	invitations := app.Group("/invitations", middleware.InviteAcceptRateLimiter())
	invitations.Get("/:token", memberController.GetInvitation)
	invitations.Post("/:token/accept", middleware.Protected(), memberController.AcceptInvitation)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Firm routes
	firm := api.Group("/firms")
	firm.Post("/", firmController.CreateFirm)
	firm.Get("/:id", firmController.GetFirm)
	firm.Put("/:id", firmController.UpdateFirm)
	firm.Delete("/:id", firmController.DeleteFirm)

	// Member routes
	firm.Get("/:id/members", memberController.ListMembers)
	firm.Post("/:id/members/invite", memberController.InviteMember)
	firm.Put("/:id/members/:memberID", memberController.UpdateMember)
	firm.Delete("/:id/members/:memberID", memberController.RemoveMember)

	// Client routes
	firm.Get("/:id/clients", clientController.ListClients)
	firm.Post("/:id/clients", clientController.CreateClient)
	client := api.Group("/clients")
	client.Get("/:id", clientController.GetClient)
	client.Put("/:id", clientController.UpdateClient)
	client.Delete("/:id", clientController.DeleteClient)

	// Case routes
	firm.Get("/:id/cases", caseController.ListCases)
	firm.Post("/:id/cases", caseController.CreateCase)
	legalCase := api.Group("/cases")
	legalCase.Get("/:id", caseController.GetCase)
	legalCase.Put("/:id", caseController.UpdateCase)
	legalCase.Delete("/:id", caseController.DeleteCase)

	// Task routes
	firm.Get("/:id/tasks", taskController.ListTasks)
	firm.Post("/:id/tasks", taskController.CreateTask)
	task := api.Group("/tasks")
	task.Get("/:id", taskController.GetTask)
	task.Put("/:id", taskController.UpdateTask)
	task.Patch("/:id/status", taskController.UpdateTaskStatus)
	task.Delete("/:id", taskController.DeleteTask)

	// Document routes
	document := api.Group("/documents")
	document.Post("/", documentController.UploadDocument)
	document.Get("/", documentController.ListDocuments)
	document.Get("/:id", documentController.GetDocument)
	document.Post("/:id/ask", documentController.AskDocument)
	document.Delete("/:id", documentController.DeleteDocument)

	// Conversation routes
	conversation := api.Group("/conversations")
	conversation.Post("/", chatController.CreateConversation)
	conversation.Get("/", chatController.ListConversations)
	conversation.Get("/:id", chatController.GetConversation)
	conversation.Post("/:id/messages", chatController.AddMessage)
	conversation.Delete("/:id", chatController.DeleteConversation)

	// Knowledge base routes
	firm.Get("/:id/knowledge", knowledgeController.ListEntries)
	firm.Post("/:id/knowledge", knowledgeController.CreateEntry)
	knowledge := api.Group("/knowledge")
	knowledge.Get("/:entryID", knowledgeController.GetEntry)
	knowledge.Delete("/:entryID", knowledgeController.DeleteEntry)

	// Notification routes; static paths registered before the :id ones
	notification := api.Group("/notifications")
	notification.Get("/recent", notificationController.RecentNotifications)
	notification.Get("/stats", notificationController.NotificationStats)
	notification.Get("/preferences", notificationController.GetPreferences)
	notification.Put("/preferences", notificationController.UpdatePreferences)
	notification.Put("/read-all", notificationController.MarkAllRead)
	notification.Post("/bulk-delete", notificationController.BulkDeleteNotifications)
	notification.Get("/", notificationController.ListNotifications)
	notification.Put("/:id/read", notificationController.MarkRead)
	notification.Put("/:id/unread", notificationController.MarkUnread)
	notification.Delete("/:id", notificationController.DeleteNotification)

	// Announcements
	firm.Post("/:id/announcements", notificationController.SendAnnouncement)
	firm.Post("/:id/emergency", notificationController.SendEmergency)

	// WebSocket route for realtime notifications
	app.Get("/api/v1/notifications/stream", middleware.Protected(), websocket.New(hub.HandleNotificationWS))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, notifier *utils.Notifier, hub *controller.NotificationHub, analyzer *utils.AnalyzerClient, mailer *utils.Mailer) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	SetupAuthRoutes(app, db)

	// Setup API routes
	SetupAPIRoutes(app, db, notifier, hub, analyzer, mailer)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
