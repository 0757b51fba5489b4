package handlers

import (
	"database/sql"
	"errors"
	"fmt"

	"taskhive/internal/apperrors"
	"taskhive/internal/config"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Endpoint lifecycle user oleh admin. Berbeda dari handler lain, role caller
// diverifikasi ulang lewat lookup ke database, bukan hanya dari claim token:
// token yang masih hidup tidak boleh mempertahankan hak admin yang sudah
// dicabut. Semua kegagalan diberi tag (unauthenticated / forbidden /
// validation / upstream) dan dipetakan ke status lewat apperrors, tanpa retry.

// adminGuard memverifikasi bahwa caller terautentikasi dan (per database)
// masih admin.
func adminGuard(c *fiber.Ctx) (int, error) {
	callerID, ok := c.Locals("userID").(int)
	if !ok {
		return 0, apperrors.Unauthenticated("User not authenticated")
	}

	var role string
	err := config.DB.QueryRow("SELECT role FROM users WHERE id = $1", callerID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.Unauthenticated("User not found")
	}
	if err != nil {
		return 0, apperrors.Upstream("Error verifying caller role", err)
	}
	if role != "admin" {
		return 0, apperrors.Forbidden("Admin privilege required")
	}
	return callerID, nil
}

func adminError(c *fiber.Ctx, err error) error {
	status := apperrors.Status(err)
	if status >= 500 {
		logger.ErrorLogger.Error("Admin endpoint failure", zap.Error(err))
	} else {
		logger.SecurityLogger.Warn("Admin endpoint rejected",
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.String("url", c.OriginalURL()),
		)
	}

	message := "Internal server error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && status < 500 {
		message = appErr.Message
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   string(apperrors.KindOf(err)),
		"success": false,
		"status":  status,
	})
}

// AdminCreateUser membuat user baru dengan role pilihan admin.
func AdminCreateUser(c *fiber.Ctx) error {
	callerID, err := adminGuard(c)
	if err != nil {
		return adminError(c, err)
	}

	type CreateUserRequest struct {
		Username string `json:"username" validate:"required,excludesall=@?"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
		Role     string `json:"role" validate:"required,oneof=admin user"`
	}

	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return adminError(c, apperrors.Validation("Bad request"))
	}
	if err := config.Validate.Struct(req); err != nil {
		return adminError(c, apperrors.Validation("Validation error: "+err.Error()))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return adminError(c, apperrors.Upstream("Error hashing password", err))
	}

	var userID int
	err = config.DB.QueryRow(
		"INSERT INTO users (username, email, password, role) VALUES ($1, $2, $3, $4) RETURNING id",
		req.Username, req.Email, string(hashedPassword), req.Role).Scan(&userID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return adminError(c, apperrors.Conflict("Username or email already exists"))
		}
		return adminError(c, apperrors.Upstream("Error creating user", err))
	}

	logger.AuditLogger.Info("User created by admin",
		zap.Int("admin_id", callerID),
		zap.Int("user_id", userID),
		zap.String("role", req.Role),
	)
	return c.Status(201).JSON(fiber.Map{
		"message": "User created successfully",
		"success": true,
		"status":  201,
		"data": fiber.Map{
			"id": userID,
		},
	})
}

// AdminDeleteUser menghapus user. Ditolak jika target adalah caller sendiri
// atau admin terakhir yang tersisa.
func AdminDeleteUser(c *fiber.Ctx) error {
	callerID, err := adminGuard(c)
	if err != nil {
		return adminError(c, err)
	}

	targetID, err := c.ParamsInt("id")
	if err != nil {
		return adminError(c, apperrors.Validation("Invalid user ID"))
	}

	var targetRole string
	err = config.DB.QueryRow("SELECT role FROM users WHERE id = $1", targetID).Scan(&targetRole)
	if errors.Is(err, sql.ErrNoRows) {
		return adminError(c, apperrors.NotFound("User not found"))
	}
	if err != nil {
		return adminError(c, apperrors.Upstream("Error fetching target user", err))
	}

	if targetRole == "admin" {
		var adminCount int
		if err := config.DB.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&adminCount); err != nil {
			return adminError(c, apperrors.Upstream("Error counting admins", err))
		}
		if adminCount <= 1 {
			return adminError(c, apperrors.Validation("Cannot delete the last remaining admin"))
		}
	}

	if targetID == callerID {
		return adminError(c, apperrors.Validation("You cannot delete your own account"))
	}

	if _, err := config.DB.Exec("DELETE FROM users WHERE id = $1", targetID); err != nil {
		return adminError(c, apperrors.Upstream("Error deleting user", err))
	}

	// Hapus cache Redis untuk user ini
	cacheKey := fmt.Sprintf("user:%d", targetID)
	config.RedisClient.Del(config.Ctx, cacheKey)

	logger.AuditLogger.Info("User deleted by admin",
		zap.Int("admin_id", callerID),
		zap.Int("user_id", targetID),
	)
	return c.Status(200).JSON(fiber.Map{
		"message": "User deleted successfully",
		"success": true,
		"status":  200,
	})
}
