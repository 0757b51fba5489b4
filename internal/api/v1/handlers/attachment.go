package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"taskhive/internal/config"
	"taskhive/internal/models"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Attachment handlers

// UploadDir bisa dioverride dari configs saat boot.
var UploadDir = "uploads"

// Fungsi untuk validasi file
func validateFile(file *multipart.FileHeader) error {
	// Validasi ukuran file maksimal 5MB
	if file.Size > 5<<20 {
		return fiber.NewError(fiber.StatusBadRequest, "File size exceeds the limit of 5MB")
	}

	// Validasi ekstensi file
	ext := strings.ToLower(filepath.Ext(file.Filename))
	allowedExts := map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".pdf": true, ".txt": true, ".docx": true}
	if !allowedExts[ext] {
		return fiber.NewError(fiber.StatusBadRequest, "File type not allowed")
	}

	return nil
}

func ensureUploadDir() error {
	if _, err := os.Stat(UploadDir); os.IsNotExist(err) {
		return os.MkdirAll(UploadDir, os.ModePerm)
	}
	return nil
}

// taskVisibleTo memuat task dan memeriksa visibilitas project-nya.
func taskVisibleTo(taskID, userID int, role string) (models.Task, bool, error) {
	task, err := getTaskByID(taskID)
	if err != nil {
		return task, false, err
	}
	visible, err := canViewTask(task, userID, role)
	return task, visible, err
}

// UploadAttachment mengunggah lampiran untuk sebuah task.
// Semua user yang bisa melihat task boleh melampirkan file.
func UploadAttachment(c *fiber.Ctx) error {
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

	_, visible, err := taskVisibleTo(taskID, userID, role)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !visible) {
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

	// Pastikan folder uploads sudah ada
	if err := ensureUploadDir(); err != nil {
		logger.ErrorLogger.Error("Error creating upload directory", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error creating upload directory",
			"success": false,
			"status":  500,
		})
	}

	// Ambil file dari form-data
	file, err := c.FormFile("file")
	if err != nil {
		logger.ErrorLogger.Error("Error uploading file", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Error uploading file",
			"success": false,
			"status":  400,
		})
	}

	// Validasi file
	if err := validateFile(file); err != nil {
		logger.ErrorLogger.Error("Error validating file", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": err.Error(),
			"success": false,
			"status":  400,
		})
	}

	// Nama file disimpan dengan uuid supaya unik dan tidak bisa ditebak
	storedName := uuid.New().String() + strings.ToLower(filepath.Ext(file.Filename))
	filePath := path.Join(UploadDir, storedName)
	if err := c.SaveFile(file, filePath); err != nil {
		logger.ErrorLogger.Error("Error saving file", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error saving file",
			"success": false,
			"status":  500,
		})
	}

	contentType := file.Header.Get("Content-Type")

	var attachmentID int
	err = config.DB.QueryRow(
		"INSERT INTO task_attachments (task_id, file_name, stored_name, size, content_type, uploaded_by) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		taskID, file.Filename, storedName, file.Size, contentType, userID,
	).Scan(&attachmentID)
	if err != nil {
		// Metadata gagal ditulis: buang file yang sudah tersimpan
		os.Remove(filePath)
		logger.ErrorLogger.Error("Error saving attachment metadata", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error saving attachment",
			"success": false,
			"status":  500,
		})
	}

	logger.AuditLogger.Info("Attachment uploaded", zap.Int("task_id", taskID), zap.String("stored_name", storedName))
	return c.Status(201).JSON(fiber.Map{
		"message": "Attachment uploaded successfully",
		"success": true,
		"status":  201,
		"data": fiber.Map{
			"id":        attachmentID,
			"file_name": file.Filename,
			"size":      file.Size,
		},
	})
}

// ListAttachments mengembalikan metadata lampiran sebuah task.
func ListAttachments(c *fiber.Ctx) error {
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

	_, visible, err := taskVisibleTo(taskID, userID, role)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !visible) {
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

	rows, err := config.DB.Query(
		"SELECT id, task_id, file_name, stored_name, size, content_type, uploaded_by, created_at FROM task_attachments WHERE task_id = $1 ORDER BY id",
		taskID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching attachments", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching attachments",
			"success": false,
			"status":  500,
		})
	}
	defer rows.Close()

	attachments := []models.TaskAttachment{}
	for rows.Next() {
		var a models.TaskAttachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.FileName, &a.StoredName, &a.Size, &a.ContentType, &a.UploadedBy, &a.CreatedAt); err != nil {
			logger.ErrorLogger.Error("Error scanning attachments", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{
				"message": "Error scanning attachments",
				"success": false,
				"status":  500,
			})
		}
		attachments = append(attachments, a)
	}

	if err = rows.Err(); err != nil {
		logger.ErrorLogger.Error("Error iterating over attachments", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error iterating over attachments",
			"success": false,
			"status":  500,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Attachments fetched successfully",
		"success": true,
		"status":  200,
		"data":    attachments,
	})
}

// DownloadAttachment mengirim isi file lampiran.
func DownloadAttachment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	attachmentID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid attachment ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid attachment ID",
			"success": false,
			"status":  400,
		})
	}

	var a models.TaskAttachment
	err = config.DB.QueryRow(
		"SELECT id, task_id, file_name, stored_name, size, content_type, uploaded_by, created_at FROM task_attachments WHERE id = $1",
		attachmentID).Scan(&a.ID, &a.TaskID, &a.FileName, &a.StoredName, &a.Size, &a.ContentType, &a.UploadedBy, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{
			"message": "Attachment not found",
			"success": false,
			"status":  404,
		})
	}
	if err != nil {
		logger.ErrorLogger.Error("Error fetching attachment", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching attachment",
			"success": false,
			"status":  500,
		})
	}

	_, visible, err := taskVisibleTo(a.TaskID, userID, role)
	if err != nil || !visible {
		return c.Status(404).JSON(fiber.Map{
			"message": "Attachment not found",
			"success": false,
			"status":  404,
		})
	}

	filePath := path.Join(UploadDir, a.StoredName)
	return c.Download(filePath, a.FileName)
}

// DeleteAttachment menghapus lampiran; hanya pengunggah atau admin.
func DeleteAttachment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)
	role := c.Locals("role").(string)

	attachmentID, err := c.ParamsInt("id")
	if err != nil {
		logger.ErrorLogger.Error("Invalid attachment ID", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Invalid attachment ID",
			"success": false,
			"status":  400,
		})
	}

	var storedName string
	var uploadedBy int
	err = config.DB.QueryRow(
		"SELECT stored_name, uploaded_by FROM task_attachments WHERE id = $1",
		attachmentID).Scan(&storedName, &uploadedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(404).JSON(fiber.Map{
			"message": "Attachment not found",
			"success": false,
			"status":  404,
		})
	}
	if err != nil {
		logger.ErrorLogger.Error("Error fetching attachment", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error fetching attachment",
			"success": false,
			"status":  500,
		})
	}

	if role != "admin" && userID != uploadedBy {
		logger.SecurityLogger.Warn("You don't have permission to delete this attachment",
			zap.String("role", role), zap.Int("user_id", userID), zap.Int("attachment_id", attachmentID))
		return c.Status(403).JSON(fiber.Map{
			"message": "Forbidden",
			"success": false,
			"status":  403,
		})
	}

	if _, err := config.DB.Exec("DELETE FROM task_attachments WHERE id = $1", attachmentID); err != nil {
		logger.ErrorLogger.Error("Error deleting attachment", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error deleting attachment",
			"success": false,
			"status":  500,
		})
	}

	// File fisik dihapus best-effort setelah metadata terhapus
	if err := os.Remove(path.Join(UploadDir, storedName)); err != nil {
		logger.ErrorLogger.Error("Error removing attachment file", zap.Error(err))
	}

	logger.AuditLogger.Info("Attachment deleted", zap.Int("attachment_id", attachmentID))
	return c.JSON(fiber.Map{
		"message": "Attachment deleted successfully",
		"success": true,
		"status":  200,
	})
}

// UploadProfilePicture menyimpan foto profil user yang sedang login.
func UploadProfilePicture(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	if err := ensureUploadDir(); err != nil {
		logger.ErrorLogger.Error("Error creating upload directory", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error creating upload directory",
			"success": false,
			"status":  500,
		})
	}

	file, err := c.FormFile("profile_picture")
	if err != nil {
		logger.ErrorLogger.Error("Error uploading file", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": "Error uploading file",
			"success": false,
			"status":  400,
		})
	}

	if err := validateFile(file); err != nil {
		logger.ErrorLogger.Error("Error validating file", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{
			"message": err.Error(),
			"success": false,
			"status":  400,
		})
	}

	newFilename := uuid.New().String() + strings.ToLower(filepath.Ext(file.Filename))
	filePath := path.Join(UploadDir, newFilename)

	if err := c.SaveFile(file, filePath); err != nil {
		logger.ErrorLogger.Error("Error saving file", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error saving file",
			"success": false,
			"status":  500,
		})
	}

	fileURL := fmt.Sprintf("/uploads/%s", newFilename)

	_, err = config.DB.Exec("UPDATE users SET profile_picture = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", fileURL, userID)
	if err != nil {
		logger.ErrorLogger.Error("Error updating profile picture", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"message": "Error updating profile picture",
			"success": false,
			"status":  500,
		})
	}

	// Cache user jadi basi setelah foto profil berubah
	config.RedisClient.Del(config.Ctx, fmt.Sprintf("user:%d", userID))

	logger.AuditLogger.Info("Profile picture uploaded", zap.String("filename", newFilename))
	return c.JSON(fiber.Map{
		"message": "Profile picture uploaded successfully",
		"success": true,
		"status":  200,
		"data": fiber.Map{
			"profile_picture": fileURL,
		},
	})
}
