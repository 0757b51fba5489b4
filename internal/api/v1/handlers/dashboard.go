package handlers

import (
	"taskhive/internal/config"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Dashboard handler

// GetDashboard mengembalikan ringkasan untuk viewer: jumlah project yang
// terlihat, task per status, task yang lewat tenggat, dan notifikasi yang
// belum dibaca.
func GetDashboard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	visibleProjects := `
		SELECT DISTINCT p.id FROM projects p
		LEFT JOIN project_members m ON m.project_id = p.id
		WHERE p.owner_id = $1 OR m.user_id = $1`
	if role == "admin" {
		visibleProjects = "SELECT id FROM projects WHERE $1 >= 0"
	}

	var projectCount int
	err := config.DB.QueryRow(
		"SELECT COUNT(*) FROM ("+visibleProjects+") v", userID).Scan(&projectCount)
	if err != nil {
		logger.ErrorLogger.Error("Error counting projects", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching dashboard",
			"success": false,
			"status":  500,
		})
	}

	taskCounts := map[string]int{"todo": 0, "in_progress": 0, "done": 0}
	rows, err := config.DB.Query(
		"SELECT status, COUNT(*) FROM tasks WHERE project_id IN ("+visibleProjects+") GROUP BY status", userID)
	if err != nil {
		logger.ErrorLogger.Error("Error counting tasks", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching dashboard",
			"success": false,
			"status":  500,
		})
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			logger.ErrorLogger.Error("Error scanning task counts", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error fetching dashboard",
				"success": false,
				"status":  500,
			})
		}
		taskCounts[status] = count
	}
	if err = rows.Err(); err != nil {
		logger.ErrorLogger.Error("Error iterating over task counts", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching dashboard",
			"success": false,
			"status":  500,
		})
	}

	var overdueCount int
	err = config.DB.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE project_id IN ("+visibleProjects+") AND due_date < CURRENT_TIMESTAMP AND status != 'done'",
		userID).Scan(&overdueCount)
	if err != nil {
		logger.ErrorLogger.Error("Error counting overdue tasks", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching dashboard",
			"success": false,
			"status":  500,
		})
	}

	var unreadCount int
	err = config.DB.QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE",
		userID).Scan(&unreadCount)
	if err != nil {
		logger.ErrorLogger.Error("Error counting unread notifications", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching dashboard",
			"success": false,
			"status":  500,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Dashboard fetched successfully",
		"success": true,
		"status":  200,
		"data": fiber.Map{
			"projects":             projectCount,
			"tasks":                taskCounts,
			"overdue_tasks":        overdueCount,
			"unread_notifications": unreadCount,
		},
	})
}
