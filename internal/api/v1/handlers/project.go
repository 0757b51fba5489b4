package handlers

import (
	"database/sql"

	"taskhive/internal/config"
	"taskhive/internal/models"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Project handlers

// validProjectStatus memeriksa status project:
// - active
// - completed
// - archived
func validProjectStatus(status string) bool {
	switch status {
	case "active", "completed", "archived":
		return true
	default:
		return false
	}
}

// canViewProject menerapkan aturan visibilitas baris:
// project terlihat oleh owner, member, atau admin.
func canViewProject(projectID, userID int, role string) (bool, error) {
	if role == "admin" {
		var exists bool
		err := config.DB.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)", projectID).Scan(&exists)
		return exists, err
	}
	var visible bool
	err := config.DB.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM projects p
			WHERE p.id = $1
			  AND (p.owner_id = $2
			       OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = $2))
		)`, projectID, userID).Scan(&visible)
	return visible, err
}

// CreateProject membuat project baru, hanya untuk admin.
func CreateProject(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	type ProjectRequest struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
		Status      string `json:"status" validate:"omitempty,oneof=active completed archived"`
		OwnerID     *int   `json:"owner_id"`
	}

	var req ProjectRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in create project", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Bad request",
			"success": false,
			"status":  400,
		})
	}

	if err := config.Validate.Struct(req); err != nil {
		logger.ErrorLogger.Error("Validation error in create project", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Validation error",
			"errors":  err.Error(),
			"success": false,
			"status":  400,
		})
	}

	if req.Status == "" {
		req.Status = "active"
	}
	// Owner default-nya admin yang membuat project
	ownerID := userID
	if req.OwnerID != nil {
		ownerID = *req.OwnerID
	}

	var projectID int
	err := config.DB.QueryRow(
		"INSERT INTO projects (name, description, status, owner_id) VALUES ($1, $2, $3, $4) RETURNING id",
		req.Name, req.Description, req.Status, ownerID,
	).Scan(&projectID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			logger.ErrorLogger.Error("Owner does not exist", zap.Error(err))
			return c.Status(400).JSON(fiber.Map{
				"message": "Owner does not exist",
				"success": false,
				"status":  400,
			})
		}
		logger.ErrorLogger.Error("Error creating project", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error creating project",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Project created successfully", zap.Int("project_id", projectID))
	return c.Status(201).JSON(fiber.Map{
		"message": "Project created successfully",
		"success": true,
		"status":  201,
		"id":      projectID,
	})
}

// ListProjects mengembalikan project yang terlihat oleh viewer:
// admin melihat semua, user hanya project miliknya atau yang ia ikuti.
func ListProjects(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	var rows *sql.Rows
	var err error

	if role == "admin" {
		rows, err = config.DB.Query(
			"SELECT id, name, description, status, owner_id, created_at, updated_at FROM projects ORDER BY id")
	} else {
		rows, err = config.DB.Query(`
			SELECT DISTINCT p.id, p.name, p.description, p.status, p.owner_id, p.created_at, p.updated_at
			FROM projects p
			LEFT JOIN project_members m ON m.project_id = p.id
			WHERE p.owner_id = $1 OR m.user_id = $1
			ORDER BY p.id`, userID)
	}

	if err != nil {
		logger.ErrorLogger.Error("Error fetching projects", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching projects",
			"success": false,
			"status":  500,
		})
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var project models.Project
		err := rows.Scan(&project.ID, &project.Name, &project.Description, &project.Status, &project.OwnerID, &project.CreatedAt, &project.UpdatedAt)
		if err != nil {
			logger.ErrorLogger.Error("Error scanning projects", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error scanning projects",
				"success": false,
				"status":  500,
			})
		}
		projects = append(projects, project)
	}

	if err = rows.Err(); err != nil {
		logger.ErrorLogger.Error("Error iterating over projects", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error iterating over projects",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Projects fetched successfully")
	return c.JSON(fiber.Map{
		"message": "Projects fetched successfully",
		"success": true,
		"status":  200,
		"data":    projects,
	})
}

// GetProject mengembalikan satu project jika viewer boleh melihatnya.
func GetProject(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	projectID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid project ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid project ID",
			"success": false,
			"status":  400,
		})
	}

	visible, err := canViewProject(projectID, userID, role)
	if err != nil {
		logger.ErrorLogger.Error("Error checking project visibility", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching project",
			"success": false,
			"status":  500,
		})
	}
	if !visible {
		logger.SecurityLogger.Warn("Project not visible", zap.Int("user_id", userID), zap.Int("project_id", projectID))
		return c.Status(404).JSON(fiber.Map{
			"message": "Project not found",
			"success": false,
			"status":  404,
		})
	}

	var project models.Project
	err = config.DB.QueryRow(
		"SELECT id, name, description, status, owner_id, created_at, updated_at FROM projects WHERE id = $1",
		projectID).Scan(&project.ID, &project.Name, &project.Description, &project.Status, &project.OwnerID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		logger.ErrorLogger.Error("Project not found", zap.Error(err))
		return c.Status(404).JSON(fiber.Map{
			"message": "Project not found",
			"success": false,
			"status":  404,
		})
	}

	logger.AuditLogger.Info("Project found", zap.Int("project_id", projectID))
	return c.JSON(fiber.Map{
		"message": "Project found",
		"success": true,
		"status":  200,
		"data":    project,
	})
}

// UpdateProject memperbarui project, hanya untuk admin.
func UpdateProject(c *fiber.Ctx) error {
	projectID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid project ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid project ID",
			"success": false,
			"status":  400,
		})
	}

	// pointer (*) untuk menandakan bahwa field bisa kosong
	type UpdateProjectRequest struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		OwnerID     *int    `json:"owner_id"`
	}

	var req UpdateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in update project", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Bad request",
			"success": false,
			"status":  400,
		})
	}

	if req.Status != nil && !validProjectStatus(*req.Status) {
		logger.ErrorLogger.Error("Invalid project status")
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid status",
			"success": false,
			"status":  400,
		})
	}

	var exists bool
	if err := config.DB.QueryRow("SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)", projectID).Scan(&exists); err != nil || !exists {
		logger.ErrorLogger.Error("Project not found", zap.Error(err))
		return c.Status(404).JSON(fiber.Map{
			"message": "Project not found",
			"success": false,
			"status":  404,
		})
	}

	// updated_at selalu di-set oleh server, tidak pernah dari client
	_, err = config.DB.Exec(`
		UPDATE projects
		SET name = COALESCE(NULLIF($1, ''), name),
			description = COALESCE($2, description),
			status = COALESCE(NULLIF($3, ''), status),
			owner_id = COALESCE($4, owner_id),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $5`,
		req.Name, req.Description, req.Status, req.OwnerID, projectID,
	)
	if err != nil {
		logger.ErrorLogger.Error("Error updating project", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error updating project",
			"success": false,
			"status":  500,
		})
	}

	var project models.Project
	err = config.DB.QueryRow(
		"SELECT id, name, description, status, owner_id, created_at, updated_at FROM projects WHERE id = $1",
		projectID).Scan(&project.ID, &project.Name, &project.Description, &project.Status, &project.OwnerID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching updated project", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching updated project",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Project updated successfully", zap.Int("project_id", projectID))
	return c.JSON(fiber.Map{
		"message": "Project updated successfully",
		"success": true,
		"status":  200,
		"data":    project,
	})
}

// DeleteProject menghapus project beserta task dan membership-nya (cascade),
// hanya untuk admin.
func DeleteProject(c *fiber.Ctx) error {
	projectID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid project ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid project ID",
			"success": false,
			"status":  400,
		})
	}

	result, err := config.DB.Exec("DELETE FROM projects WHERE id = $1", projectID)
	if err != nil {
		logger.ErrorLogger.Error("Error deleting project", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error deleting project",
			"success": false,
			"status":  500,
		})
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return c.Status(404).JSON(fiber.Map{
			"message": "Project not found",
			"success": false,
			"status":  404,
		})
	}

	logger.AuditLogger.Info("Project deleted successfully", zap.Int("project_id", projectID))
	return c.JSON(fiber.Map{
		"message": "Project deleted successfully",
		"success": true,
		"status":  200,
	})
}

// ListProjectMembers mengembalikan member project untuk viewer yang berhak.
func ListProjectMembers(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	projectID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid project ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid project ID",
			"success": false,
			"status":  400,
		})
	}

	visible, err := canViewProject(projectID, userID, role)
	if err != nil {
		logger.ErrorLogger.Error("Error checking project visibility", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching members",
			"success": false,
			"status":  500,
		})
	}
	if !visible {
		return c.Status(404).JSON(fiber.Map{
			"message": "Project not found",
			"success": false,
			"status":  404,
		})
	}

	rows, err := config.DB.Query(`
		SELECT m.id, m.project_id, m.user_id, u.username, m.created_at
		FROM project_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1
		ORDER BY m.id`, projectID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching members", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching members",
			"success": false,
			"status":  500,
		})
	}
	defer rows.Close()

	members := []models.ProjectMember{}
	for rows.Next() {
		var member models.ProjectMember
		if err := rows.Scan(&member.ID, &member.ProjectID, &member.UserID, &member.Username, &member.CreatedAt); err != nil {
			logger.ErrorLogger.Error("Error scanning members", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error scanning members",
				"success": false,
				"status":  500,
			})
		}
		members = append(members, member)
	}

	if err = rows.Err(); err != nil {
		logger.ErrorLogger.Error("Error iterating over members", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error iterating over members",
			"success": false,
			"status":  500,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Members fetched successfully",
		"success": true,
		"status":  200,
		"data":    members,
	})
}

// AddProjectMember menambahkan user sebagai member project, hanya untuk admin.
func AddProjectMember(c *fiber.Ctx) error {
	projectID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid project ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid project ID",
			"success": false,
			"status":  400,
		})
	}

	type AddMemberRequest struct {
		UserID int `json:"user_id" validate:"required"`
	}

	var req AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in add member", zap.Error(err))
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

	var memberID int
	err = config.DB.QueryRow(
		"INSERT INTO project_members (project_id, user_id) VALUES ($1, $2) RETURNING id",
		projectID, req.UserID).Scan(&memberID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return c.Status(409).JSON(fiber.Map{
					"message": "User is already a member of this project",
					"success": false,
					"status":  409,
				})
			case "23503":
				return c.Status(400).JSON(fiber.Map{
					"message": "Project or user does not exist",
					"success": false,
					"status":  400,
				})
			}
		}
		logger.ErrorLogger.Error("Error adding member", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error adding member",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Member added", zap.Int("project_id", projectID), zap.Int("user_id", req.UserID))
	return c.Status(201).JSON(fiber.Map{
		"message": "Member added successfully",
		"success": true,
		"status":  201,
		"id":      memberID,
	})
}

// RemoveProjectMember mengeluarkan user dari project, hanya untuk admin.
func RemoveProjectMember(c *fiber.Ctx) error {
	projectID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid project ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid project ID",
			"success": false,
			"status":  400,
		})
	}

	memberUserID, err := c.ParamsInt("user_id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid user ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid user ID",
			"success": false,
			"status":  400,
		})
	}

	result, err := config.DB.Exec(
		"DELETE FROM project_members WHERE project_id = $1 AND user_id = $2",
		projectID, memberUserID)
	if err != nil {
		logger.ErrorLogger.Error("Error removing member", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error removing member",
			"success": false,
			"status":  500,
		})
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return c.Status(404).JSON(fiber.Map{
			"message": "Member not found",
			"success": false,
			"status":  404,
		})
	}

	logger.AuditLogger.Info("Member removed", zap.Int("project_id", projectID), zap.Int("user_id", memberUserID))
	return c.JSON(fiber.Map{
		"message": "Member removed successfully",
		"success": true,
		"status":  200,
	})
}
