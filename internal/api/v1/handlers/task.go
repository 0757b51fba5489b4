package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskhive/internal/config"
	"taskhive/internal/models"
	"taskhive/internal/service"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Task handlers

// validStatus memeriksa status task:
// - todo
// - in_progress
// - done
func validStatus(status string) bool {
	switch status {
	case "todo", "in_progress", "done":
		return true
	default:
		return false
	}
}

// validPriority memeriksa prioritas task:
// - low
// - medium
// - high
func validPriority(priority string) bool {
	switch priority {
	case "low", "medium", "high":
		return true
	default:
		return false
	}
}

const taskColumns = "id, project_id, title, description, status, priority, assignee_id, due_date, position, created_by, created_at, updated_at"

func scanTask(row *sql.Row) (models.Task, error) {
	var task models.Task
	err := row.Scan(&task.ID, &task.ProjectID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.AssigneeID, &task.DueDate, &task.Position, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt)
	return task, err
}

func getTaskByID(taskID int) (models.Task, error) {
	return scanTask(config.DB.QueryRow(
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1", taskID))
}

// canViewTask: task terlihat jika project-nya terlihat oleh viewer.
func canViewTask(task models.Task, userID int, role string) (bool, error) {
	return canViewProject(task.ProjectID, userID, role)
}

// notifyAssignment menjalankan notifikasi penugasan secara best-effort dan
// tidak pernah menggagalkan mutasi task yang memicunya.
func notifyAssignment(task models.Task, event string) {
	if config.Mailer == nil {
		return
	}
	notifier := service.NewNotifier(config.DB, config.Mailer)
	notifier.NotifyTaskAssignment(task, event)
	if task.AssigneeID != nil {
		config.Hub.BroadcastChange("notifications", "created", *task.AssigneeID)
	}
}

func cacheTask(task models.Task) {
	cacheKey := fmt.Sprintf("task:%d", task.ID)
	taskJSON, err := json.Marshal(task)
	if err == nil {
		config.RedisClient.SetEX(config.Ctx, cacheKey, taskJSON, time.Hour)
	}
}

func invalidateTaskCache(taskID int) {
	config.RedisClient.Del(config.Ctx, fmt.Sprintf("task:%d", taskID))
}

// CreateTask membuat task baru dalam sebuah project, hanya untuk admin.
// Jika task dibuat dengan assignee, notifikasi penugasan dijalankan.
func CreateTask(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	type TaskRequest struct {
		ProjectID   int        `json:"project_id" validate:"required"`
		Title       string     `json:"title" validate:"required"`
		Description string     `json:"description"`
		Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
		Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
		AssigneeID  *int       `json:"assignee_id"`
		DueDate     *time.Time `json:"due_date"`
		Position    *int       `json:"position"`
	}

	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in create task", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Bad request",
			"success": false,
			"status":  400,
		})
	}

	if err := config.Validate.Struct(req); err != nil {
		logger.ErrorLogger.Error("Validation error in create task", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Validation error",
			"errors":  err.Error(),
			"success": false,
			"status":  400,
		})
	}

	if req.Status == "" {
		req.Status = "todo"
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}

	// Posisi default: paling bawah di kolom kanban status tersebut
	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		err := config.DB.QueryRow(
			"SELECT COALESCE(MAX(position), -1) + 1 FROM tasks WHERE project_id = $1 AND status = $2",
			req.ProjectID, req.Status).Scan(&position)
		if err != nil {
			logger.ErrorLogger.Error("Error computing task position", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error creating task",
				"success": false,
				"status":  500,
			})
		}
	}

	var taskID int
	err := config.DB.QueryRow(
		"INSERT INTO tasks (project_id, title, description, status, priority, assignee_id, due_date, position, created_by) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id",
		req.ProjectID, req.Title, req.Description, req.Status, req.Priority, req.AssigneeID, req.DueDate, position, userID,
	).Scan(&taskID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			logger.ErrorLogger.Error("Project or assignee does not exist", zap.Error(err))
			return c.Status(400).JSON(fiber.Map{
				"message": "Project or assignee does not exist",
				"success": false,
				"status":  400,
			})
		}
		logger.ErrorLogger.Error("Error creating task", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error creating task",
			"success": false,
			"status":  500,
		})
	}

	task, err := getTaskByID(taskID)
	if err == nil {
		cacheTask(task)
		// Notifikasi hanya saat task lahir dengan assignee
		if task.AssigneeID != nil {
			notifyAssignment(task, service.EventTaskAssigned)
		}
	}
	config.Hub.BroadcastChange("tasks", "created", taskID)

	logger.AuditLogger.Info("Task created successfully", zap.Int("task_id", taskID))
	return c.Status(201).JSON(fiber.Map{
		"message": "Task created successfully",
		"success": true,
		"status":  201,
		"id":      taskID,
	})
}

// ListTasks mengembalikan task yang terlihat oleh viewer, dengan filter
// opsional project_id/status/priority/assignee_id/due_before/due_after
// (melayani tampilan list, kanban, dan kalender).
func ListTasks(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	args := []interface{}{}

	if role != "admin" {
		args = append(args, userID)
		query += fmt.Sprintf(` AND project_id IN (
			SELECT p.id FROM projects p
			LEFT JOIN project_members m ON m.project_id = p.id
			WHERE p.owner_id = $%d OR m.user_id = $%d)`, len(args), len(args))
	}

	if projectID := c.QueryInt("project_id", 0); projectID > 0 {
		args = append(args, projectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if status := c.Query("status"); status != "" {
		if !validStatus(status) {
			return c.Status(400).JSON(fiber.Map{
				"message": "Invalid status",
				"success": false,
				"status":  400,
			})
		}
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if priority := c.Query("priority"); priority != "" {
		if !validPriority(priority) {
			return c.Status(400).JSON(fiber.Map{
				"message": "Invalid priority",
				"success": false,
				"status":  400,
			})
		}
		args = append(args, priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	if assigneeID := c.QueryInt("assignee_id", 0); assigneeID > 0 {
		args = append(args, assigneeID)
		query += fmt.Sprintf(" AND assignee_id = $%d", len(args))
	}
	if dueBefore := c.Query("due_before"); dueBefore != "" {
		t, err := time.Parse(time.RFC3339, dueBefore)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{
				"message": "Invalid due_before, expected RFC3339",
				"success": false,
				"status":  400,
			})
		}
		args = append(args, t)
		query += fmt.Sprintf(" AND due_date <= $%d", len(args))
	}
	if dueAfter := c.Query("due_after"); dueAfter != "" {
		t, err := time.Parse(time.RFC3339, dueAfter)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{
				"message": "Invalid due_after, expected RFC3339",
				"success": false,
				"status":  400,
			})
		}
		args = append(args, t)
		query += fmt.Sprintf(" AND due_date >= $%d", len(args))
	}

	query += " ORDER BY status, position, id"

	rows, err := config.DB.Query(query, args...)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching tasks", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching tasks",
			"success": false,
			"status":  500,
		})
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var task models.Task
		err := rows.Scan(&task.ID, &task.ProjectID, &task.Title, &task.Description, &task.Status, &task.Priority,
			&task.AssigneeID, &task.DueDate, &task.Position, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt)
		if err != nil {
			logger.ErrorLogger.Error("Error scanning tasks", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error scanning tasks",
				"success": false,
				"status":  500,
			})
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		logger.ErrorLogger.Error("Error iterating over tasks", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error iterating over tasks",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Tasks fetched successfully")
	return c.JSON(fiber.Map{
		"message": "Tasks fetched successfully",
		"success": true,
		"status":  200,
		"data":    tasks,
	})
}

// GetTask mengembalikan satu task jika project-nya terlihat oleh viewer.
func GetTask(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	taskID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid task ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid task ID",
			"success": false,
			"status":  400,
		})
	}

	// Coba ambil data task dari cache Redis
	cacheKey := fmt.Sprintf("task:%d", taskID)
	if cached, err := config.RedisClient.Get(config.Ctx, cacheKey).Result(); err == nil {
		var task models.Task
		if err = json.Unmarshal([]byte(cached), &task); err == nil {
			visible, err := canViewTask(task, userID, role)
			if err == nil && visible {
				logger.AuditLogger.Info("Task found (from cache)")
				return c.JSON(fiber.Map{
					"message": "Task found (from cache)",
					"success": true,
					"status":  200,
					"data":    task,
				})
			}
			if err == nil && !visible {
				return c.Status(404).JSON(fiber.Map{
					"message": "Task not found",
					"success": false,
					"status":  404,
				})
			}
		}
	}

	task, err := getTaskByID(taskID)
	if errors.Is(err, sql.ErrNoRows) {
		logger.ErrorLogger.Error("Task not found", zap.Error(err))
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

	visible, err := canViewTask(task, userID, role)
	if err != nil {
		logger.ErrorLogger.Error("Error checking task visibility", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching task",
			"success": false,
			"status":  500,
		})
	}
	if !visible {
		logger.SecurityLogger.Warn("Task not visible", zap.Int("user_id", userID), zap.Int("task_id", taskID))
		return c.Status(404).JSON(fiber.Map{
			"message": "Task not found",
			"success": false,
			"status":  404,
		})
	}

	cacheTask(task)

	logger.AuditLogger.Info("Task found")
	return c.JSON(fiber.Map{
		"message": "Task found",
		"success": true,
		"status":  200,
		"data":    task,
	})
}

// UpdateTask memperbarui task, hanya untuk admin. Jika assignee berubah,
// notifikasi penugasan dijalankan untuk assignee baru.
func UpdateTask(c *fiber.Ctx) error {
	taskID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid task ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid task ID",
			"success": false,
			"status":  400,
		})
	}

	oldTask, err := getTaskByID(taskID)
	if errors.Is(err, sql.ErrNoRows) {
		logger.ErrorLogger.Error("Task not found", zap.Error(err))
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

	// pointer (*) untuk menandakan bahwa field bisa kosong.
	// AssigneeID memakai double pointer supaya "tidak dikirim" bisa
	// dibedakan dari "dikirim null" (unassign).
	type UpdateTaskRequest struct {
		Title       *string         `json:"title"`
		Description *string         `json:"description"`
		Status      *string         `json:"status"`
		Priority    *string         `json:"priority"`
		AssigneeID  json.RawMessage `json:"assignee_id"`
		DueDate     *time.Time      `json:"due_date"`
		Position    *int            `json:"position"`
	}

	var req UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in update task", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Bad request",
			"success": false,
			"status":  400,
		})
	}

	if req.Status != nil && !validStatus(*req.Status) {
		logger.ErrorLogger.Error("Invalid status")
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid status",
			"success": false,
			"status":  400,
		})
	}
	if req.Priority != nil && !validPriority(*req.Priority) {
		logger.ErrorLogger.Error("Invalid priority")
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid priority",
			"success": false,
			"status":  400,
		})
	}

	// Assignee: tidak dikirim -> pertahankan; null -> unassign; angka -> ganti
	newAssignee := oldTask.AssigneeID
	assigneeTouched := false
	if len(req.AssigneeID) > 0 {
		assigneeTouched = true
		if string(req.AssigneeID) == "null" {
			newAssignee = nil
		} else {
			var id int
			if err := json.Unmarshal(req.AssigneeID, &id); err != nil {
				return c.Status(400).JSON(fiber.Map{
					"message": "Invalid assignee_id",
					"success": false,
					"status":  400,
				})
			}
			newAssignee = &id
		}
	}

	// updated_at selalu di-set oleh server, tidak pernah dari client
	_, err = config.DB.Exec(`
		UPDATE tasks
		SET title = COALESCE(NULLIF($1, ''), title),
			description = COALESCE($2, description),
			status = COALESCE(NULLIF($3, ''), status),
			priority = COALESCE(NULLIF($4, ''), priority),
			assignee_id = $5,
			due_date = COALESCE($6, due_date),
			position = COALESCE($7, position),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $8`,
		req.Title, req.Description, req.Status, req.Priority, newAssignee, req.DueDate, req.Position, taskID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return c.Status(400).JSON(fiber.Map{
				"message": "Assignee does not exist",
				"success": false,
				"status":  400,
			})
		}
		logger.ErrorLogger.Error("Error updating task", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error updating task",
			"success": false,
			"status":  500,
		})
	}

	updatedTask, err := getTaskByID(taskID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching updated task", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching updated task",
			"success": false,
			"status":  500,
		})
	}

	// Perbarui cache Redis untuk task ini
	invalidateTaskCache(taskID)
	cacheTask(updatedTask)

	// Assignee berubah ke user lain -> event penugasan baru
	if assigneeTouched && updatedTask.AssigneeID != nil {
		changed := oldTask.AssigneeID == nil || *oldTask.AssigneeID != *updatedTask.AssigneeID
		if changed {
			notifyAssignment(updatedTask, service.EventTaskAssigned)
		}
	}
	config.Hub.BroadcastChange("tasks", "updated", taskID)

	logger.AuditLogger.Info("Task updated", zap.Int("taskID", taskID))
	return c.Status(200).JSON(fiber.Map{
		"message": "Task updated successfully",
		"success": true,
		"status":  200,
		"data":    updatedTask,
	})
}

// MoveTask memindahkan kartu kanban: ganti status dan/atau posisi,
// hanya untuk admin.
func MoveTask(c *fiber.Ctx) error {
	taskID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid task ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid task ID",
			"success": false,
			"status":  400,
		})
	}

	type MoveTaskRequest struct {
		Status   string `json:"status" validate:"required,oneof=todo in_progress done"`
		Position int    `json:"position"`
	}

	var req MoveTaskRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in move task", zap.Error(err))
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

	result, err := config.DB.Exec(`
		UPDATE tasks
		SET status = $1, position = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`,
		req.Status, req.Position, taskID)
	if err != nil {
		logger.ErrorLogger.Error("Error moving task", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error moving task",
			"success": false,
			"status":  500,
		})
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return c.Status(404).JSON(fiber.Map{
			"message": "Task not found",
			"success": false,
			"status":  404,
		})
	}

	invalidateTaskCache(taskID)
	config.Hub.BroadcastChange("tasks", "updated", taskID)

	logger.AuditLogger.Info("Task moved", zap.Int("taskID", taskID), zap.String("status", req.Status), zap.Int("position", req.Position))
	return c.JSON(fiber.Map{
		"message": "Task moved successfully",
		"success": true,
		"status":  200,
	})
}

// DeleteTask menghapus task, hanya untuk admin.
func DeleteTask(c *fiber.Ctx) error {
	taskID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid task ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid task ID",
			"success": false,
			"status":  400,
		})
	}

	result, err := config.DB.Exec("DELETE FROM tasks WHERE id = $1", taskID)
	if err != nil {
		logger.ErrorLogger.Error("Error deleting task", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error deleting task",
			"success": false,
			"status":  500,
		})
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return c.Status(404).JSON(fiber.Map{
			"message": "Task not found",
			"success": false,
			"status":  404,
		})
	}

	// Hapus cache Redis untuk task ini
	invalidateTaskCache(taskID)
	config.Hub.BroadcastChange("tasks", "deleted", taskID)

	logger.AuditLogger.Info("Task deleted", zap.Int("taskID", taskID))
	return c.Status(200).JSON(fiber.Map{
		"message": "Task deleted successfully",
		"success": true,
		"status":  200,
	})
}
