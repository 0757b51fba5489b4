package v1

import (
	"taskhive/internal/api/v1/handlers"
	"taskhive/internal/middleware"
	myws "taskhive/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(app *fiber.App, hub *myws.Hub) {
	api := app.Group("/api/v1")

	// Auth
	api.Post("/login", handlers.Login)
	api.Post("/register", handlers.Register)
	api.Get("/me", middleware.UseToken, handlers.Me)

	// User
	userRoutes := api.Group("/users", middleware.UseToken)
	userRoutes.Get("/", handlers.GetAllUsers)
	userRoutes.Get("/:id", handlers.GetUser)
	userRoutes.Put("/:id", handlers.UpdateUser)

	// Admin user lifecycle
	adminRoutes := api.Group("/admin", middleware.UseToken)
	adminRoutes.Post("/users", handlers.AdminCreateUser)
	adminRoutes.Delete("/users/:id", handlers.AdminDeleteUser)

	// Project
	projectRoutes := api.Group("/projects", middleware.UseToken)
	projectRoutes.Get("/", handlers.ListProjects)
	projectRoutes.Get("/:id", handlers.GetProject)
	projectRoutes.Get("/:id/members", handlers.ListProjectMembers)
	projectRoutes.Post("/", middleware.RequireAdmin, handlers.CreateProject)
	projectRoutes.Put("/:id", middleware.RequireAdmin, handlers.UpdateProject)
	projectRoutes.Delete("/:id", middleware.RequireAdmin, handlers.DeleteProject)
	projectRoutes.Post("/:id/members", middleware.RequireAdmin, handlers.AddProjectMember)
	projectRoutes.Delete("/:id/members/:user_id", middleware.RequireAdmin, handlers.RemoveProjectMember)

	// Task
	taskRoutes := api.Group("/tasks", middleware.UseToken)
	taskRoutes.Get("/", handlers.ListTasks)
	taskRoutes.Get("/:id", handlers.GetTask)
	taskRoutes.Post("/", middleware.RequireAdmin, handlers.CreateTask)
	taskRoutes.Put("/:id", middleware.RequireAdmin, handlers.UpdateTask)
	taskRoutes.Patch("/:id/move", middleware.RequireAdmin, handlers.MoveTask)
	taskRoutes.Delete("/:id", middleware.RequireAdmin, handlers.DeleteTask)

	// Attachment
	taskRoutes.Post("/:id/attachments", handlers.UploadAttachment)
	taskRoutes.Get("/:id/attachments", handlers.ListAttachments)
	attachmentRoutes := api.Group("/attachments", middleware.UseToken)
	attachmentRoutes.Get("/:id", handlers.DownloadAttachment)
	attachmentRoutes.Delete("/:id", handlers.DeleteAttachment)

	// Notification
	notificationRoutes := api.Group("/notifications", middleware.UseToken)
	notificationRoutes.Get("/", handlers.ListNotifications)
	notificationRoutes.Put("/read-all", handlers.MarkAllNotificationsRead)
	notificationRoutes.Put("/:id/read", handlers.MarkNotificationRead)
	notificationRoutes.Post("/task-assignment", handlers.NotifyTaskAssignment)

	settingsRoutes := api.Group("/notification-settings", middleware.UseToken)
	settingsRoutes.Get("/", handlers.GetNotificationSettings)
	settingsRoutes.Put("/", handlers.UpdateNotificationSettings)

	// Dashboard
	api.Get("/dashboard", middleware.UseToken, handlers.GetDashboard)

	// File Upload
	uploadRoutes := api.Group("/upload", middleware.UseToken)
	uploadRoutes.Post("/profile_picture", handlers.UploadProfilePicture)

	// Realtime change feed (tasks, notifications)
	api.Use("/ws", middleware.UseToken, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := &myws.Client{Conn: c}
		hub.Register <- client
		defer func() {
			hub.Unregister <- client
		}()
		// Loop baca hanya untuk mendeteksi koneksi putus;
		// feed ini satu arah (server -> klien)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))
}
