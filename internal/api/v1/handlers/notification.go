package handlers

import (
	"database/sql"
	"errors"

	"taskhive/internal/config"
	"taskhive/internal/models"
	"taskhive/internal/service"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Notification handlers

// ListNotifications mengembalikan notifikasi milik user yang sedang login.
// Filter opsional: unread=true untuk yang belum dibaca saja.
func ListNotifications(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	query := "SELECT id, user_id, task_id, type, message, is_read, created_at FROM notifications WHERE user_id = $1"
	if c.Query("unread") == "true" {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := config.DB.Query(query, userID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching notifications", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching notifications",
			"success": false,
			"status":  500,
		})
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.TaskID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			logger.ErrorLogger.Error("Error scanning notifications", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error scanning notifications",
				"success": false,
				"status":  500,
			})
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		logger.ErrorLogger.Error("Error iterating over notifications", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error iterating over notifications",
			"success": false,
			"status":  500,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Notifications fetched successfully",
		"success": true,
		"status":  200,
		"data":    notifications,
	})
}

// MarkNotificationRead menandai satu notifikasi milik user sebagai dibaca.
func MarkNotificationRead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	notificationID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid notification ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid notification ID",
			"success": false,
			"status":  400,
		})
	}

	result, err := config.DB.Exec(
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2",
		notificationID, userID)
	if err != nil {
		logger.ErrorLogger.Error("Error marking notification as read", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error marking notification as read",
			"success": false,
			"status":  500,
		})
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return c.Status(404).JSON(fiber.Map{
			"message": "Notification not found",
			"success": false,
			"status":  404,
		})
	}

	config.Hub.BroadcastChange("notifications", "updated", notificationID)

	return c.JSON(fiber.Map{
		"message": "Notification marked as read",
		"success": true,
		"status":  200,
	})
}

// MarkAllNotificationsRead menandai semua notifikasi user sebagai dibaca.
func MarkAllNotificationsRead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	_, err := config.DB.Exec(
		"UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE",
		userID)
	if err != nil {
		logger.ErrorLogger.Error("Error marking notifications as read", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error marking notifications as read",
			"success": false,
			"status":  500,
		})
	}

	config.Hub.BroadcastChange("notifications", "updated", userID)

	return c.JSON(fiber.Map{
		"message": "All notifications marked as read",
		"success": true,
		"status":  200,
	})
}

// GetNotificationSettings mengembalikan preferensi notifikasi user.
// Jika belum ada baris preferensi, semua channel dianggap aktif.
func GetNotificationSettings(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	notifier := service.NewNotifier(config.DB, config.Mailer)
	settings, err := notifier.Settings(userID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching notification settings", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching notification settings",
			"success": false,
			"status":  500,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Notification settings fetched successfully",
		"success": true,
		"status":  200,
		"data":    settings,
	})
}

// UpdateNotificationSettings meng-upsert preferensi notifikasi user.
func UpdateNotificationSettings(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	type SettingsRequest struct {
		EmailEnabled *bool `json:"email_enabled"`
		InAppEnabled *bool `json:"in_app_enabled"`
	}

	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in update notification settings", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Bad request",
			"success": false,
			"status":  400,
		})
	}

	// Mulai dari nilai efektif saat ini supaya flag yang tidak dikirim
	// tidak berubah
	notifier := service.NewNotifier(config.DB, config.Mailer)
	settings, err := notifier.Settings(userID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching notification settings", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching notification settings",
			"success": false,
			"status":  500,
		})
	}
	if req.EmailEnabled != nil {
		settings.EmailEnabled = *req.EmailEnabled
	}
	if req.InAppEnabled != nil {
		settings.InAppEnabled = *req.InAppEnabled
	}

	_, err = config.DB.Exec(`
		INSERT INTO notification_settings (user_id, email_enabled, in_app_enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET email_enabled = $2, in_app_enabled = $3, updated_at = CURRENT_TIMESTAMP`,
		userID, settings.EmailEnabled, settings.InAppEnabled)
	if err != nil {
		logger.ErrorLogger.Error("Error updating notification settings", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error updating notification settings",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Notification settings updated", zap.Int("user_id", userID))
	return c.JSON(fiber.Map{
		"message": "Notification settings updated successfully",
		"success": true,
		"status":  200,
		"data":    settings,
	})
}

// NotifyTaskAssignment adalah endpoint notifikasi eksternal: menjalankan
// ulang pemeriksaan kelayakan per channel untuk sebuah task dan mengirim
// email penugasan. Idempoten per panggilan, tanpa dedup antar panggilan.
func NotifyTaskAssignment(c *fiber.Ctx) error {
	type NotifyRequest struct {
		TaskID int    `json:"task_id" validate:"required"`
		Event  string `json:"event" validate:"required,oneof=task_assigned task_updated"`
	}

	var req NotifyRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in notify", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Bad request",
			"success": false,
			"status":  400,
		})
	}

	if err := config.Validate.Struct(req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"message": "Validation error",
			"errors":  err.Error(),
			"success": false,
			"status":  400,
		})
	}

	task, err := getTaskByID(req.TaskID)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{
			"message": "Task not found",
			"success": false,
			"status":  404,
		})
	}
	if err != nil {
		logger.ErrorLogger.Error("Error fetching task", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching task",
			"success": false,
			"status":  500,
		})
	}

	if task.AssigneeID == nil {
		return c.Status(400).JSON(fiber.Map{
			"message": "Task has no assignee",
			"success": false,
			"status":  400,
		})
	}

	notifier := service.NewNotifier(config.DB, config.Mailer)
	notified, emailed := notifier.NotifyTaskAssignment(task, req.Event)
	if notified {
		config.Hub.BroadcastChange("notifications", "created", *task.AssigneeID)
	}

	return c.JSON(fiber.Map{
		"message": "Notification processed",
		"success": true,
		"status":  200,
		"data": fiber.Map{
			"notification_created": notified,
			"email_sent":           emailed,
		},
	})
}
