package service

import (
	"database/sql"
	"errors"
	"fmt"

	"taskhive/internal/models"
	"taskhive/pkg/logger"
	"taskhive/pkg/mailer"

	"go.uber.org/zap"
)

const (
	EventTaskAssigned = "task_assigned"
	EventTaskUpdated  = "task_updated"
)

// Notifier memutuskan dan mengeksekusi notifikasi penugasan task:
// satu keputusan per channel (in-app, email), masing-masing digerbang oleh
// preferensi user. Best-effort: kegagalan hanya dicatat di log dan tidak
// pernah membatalkan mutasi task yang memicunya.
type Notifier struct {
	DB   *sql.DB
	Mail mailer.Sender
}

func NewNotifier(db *sql.DB, mail mailer.Sender) *Notifier {
	return &Notifier{DB: db, Mail: mail}
}

// Settings mengambil preferensi notifikasi user. Jika belum ada baris
// preferensi, semua channel dianggap aktif.
func (n *Notifier) Settings(userID int) (models.NotificationSettings, error) {
	settings := models.NotificationSettings{
		UserID:       userID,
		EmailEnabled: true,
		InAppEnabled: true,
	}
	err := n.DB.QueryRow(
		"SELECT email_enabled, in_app_enabled FROM notification_settings WHERE user_id = $1",
		userID).Scan(&settings.EmailEnabled, &settings.InAppEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}
	return settings, nil
}

// NotifyTaskAssignment dipanggil setelah task dibuat dengan assignee atau
// assignee-nya berubah. Mengembalikan channel mana saja yang benar-benar
// dieksekusi.
func (n *Notifier) NotifyTaskAssignment(task models.Task, event string) (notified bool, emailed bool) {
	if task.AssigneeID == nil {
		return false, false
	}
	assigneeID := *task.AssigneeID

	var username, email string
	err := n.DB.QueryRow(
		"SELECT username, email FROM users WHERE id = $1",
		assigneeID).Scan(&username, &email)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching assignee for notification",
			zap.Int("assignee_id", assigneeID), zap.Error(err))
		return false, false
	}

	settings, err := n.Settings(assigneeID)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching notification settings",
			zap.Int("assignee_id", assigneeID), zap.Error(err))
		return false, false
	}

	message := n.buildMessage(task, event)

	if settings.InAppEnabled {
		_, err := n.DB.Exec(
			"INSERT INTO notifications (user_id, task_id, type, message) VALUES ($1, $2, $3, $4)",
			assigneeID, task.ID, event, message)
		if err != nil {
			logger.ErrorLogger.Error("Error creating notification",
				zap.Int("task_id", task.ID), zap.Error(err))
		} else {
			notified = true
		}
	}

	if settings.EmailEnabled {
		subject := n.buildSubject(task, event)
		emailed = n.sendEmail(email, subject, message)
	}

	logger.AuditLogger.Info("Task assignment notification processed",
		zap.Int("task_id", task.ID),
		zap.Int("assignee_id", assigneeID),
		zap.String("event", event),
		zap.Bool("notified", notified),
		zap.Bool("emailed", emailed),
	)
	return notified, emailed
}

func (n *Notifier) buildSubject(task models.Task, event string) string {
	if event == EventTaskAssigned {
		return fmt.Sprintf("You have been assigned to task: %s", task.Title)
	}
	return fmt.Sprintf("Task updated: %s", task.Title)
}

func (n *Notifier) buildMessage(task models.Task, event string) string {
	if event == EventTaskAssigned {
		return fmt.Sprintf("You have been assigned to the task \"%s\" (status: %s, priority: %s).",
			task.Title, task.Status, task.Priority)
	}
	return fmt.Sprintf("The task \"%s\" assigned to you has been updated (status: %s, priority: %s).",
		task.Title, task.Status, task.Priority)
}

// sendEmail mengirim email dan mencatat hasilnya ke email_logs.
func (n *Notifier) sendEmail(recipient, subject, body string) bool {
	sendErr := n.Mail.Send(recipient, subject, body)

	status := "sent"
	var errText sql.NullString
	if sendErr != nil {
		status = "failed"
		errText = sql.NullString{String: sendErr.Error(), Valid: true}
		logger.ErrorLogger.Error("Error sending email",
			zap.String("recipient", recipient), zap.Error(sendErr))
	}

	_, err := n.DB.Exec(
		"INSERT INTO email_logs (recipient, subject, status, error) VALUES ($1, $2, $3, $4)",
		recipient, subject, status, errText)
	if err != nil {
		logger.ErrorLogger.Error("Error writing email log", zap.Error(err))
	}

	if sendErr == nil {
		logger.MailLogger.Info("Email sent",
			zap.String("recipient", recipient), zap.String("subject", subject))
	}
	return sendErr == nil
}
