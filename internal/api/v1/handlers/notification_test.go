package handlers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"taskhive/internal/config"
)

func TestListAndReadNotifications(t *testing.T) {
	app := createTestApp()
	testMailer.reset()

	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("nadmin_%d", time.Now().UnixNano()))
	userToken, userID := registerAndLogin(t, app, fmt.Sprintf("nuser_%d", time.Now().UnixNano()))
	projectID := createTestProject(t, app, adminToken, "Notif Project")
	createTestTask(t, app, adminToken, projectID, map[string]interface{}{
		"title":       "Notify Me",
		"assignee_id": userID,
	})

	resp, result := doJSON(t, app, "GET", "/api/v1/notifications/", userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	notifications := result["data"].([]interface{})
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifications))
	}
	n := notifications[0].(map[string]interface{})
	if n["type"] != "task_assigned" {
		t.Errorf("Expected type 'task_assigned', got %v", n["type"])
	}
	if n["is_read"] != false {
		t.Errorf("Expected unread notification")
	}
	notificationID := int(n["id"].(float64))

	// Tandai dibaca
	resp, _ = doJSON(t, app, "PUT", fmt.Sprintf("/api/v1/notifications/%d/read", notificationID), userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	// Filter unread sekarang kosong
	resp, result = doJSON(t, app, "GET", "/api/v1/notifications/?unread=true", userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if unread := result["data"].([]interface{}); len(unread) != 0 {
		t.Errorf("Expected 0 unread notifications, got %d", len(unread))
	}
}

func TestMarkNotificationReadScopedToOwner(t *testing.T) {
	app := createTestApp()
	testMailer.reset()

	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("sadmin_%d", time.Now().UnixNano()))
	_, ownerID := registerAndLogin(t, app, fmt.Sprintf("owner_%d", time.Now().UnixNano()))
	strangerToken, _ := registerAndLogin(t, app, fmt.Sprintf("stranger_%d", time.Now().UnixNano()))
	projectID := createTestProject(t, app, adminToken, "Scoped Notif Project")
	createTestTask(t, app, adminToken, projectID, map[string]interface{}{
		"title":       "Private",
		"assignee_id": ownerID,
	})

	var notificationID int
	err := config.DB.QueryRow(
		"SELECT id FROM notifications WHERE user_id = $1 ORDER BY id DESC LIMIT 1",
		ownerID).Scan(&notificationID)
	if err != nil {
		t.Fatalf("Error fetching notification: %v", err)
	}

	// Notifikasi orang lain tidak bisa ditandai dibaca -> 404
	resp, _ := doJSON(t, app, "PUT", fmt.Sprintf("/api/v1/notifications/%d/read", notificationID), strangerToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for stranger, got %d", resp.StatusCode)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	app := createTestApp()
	testMailer.reset()

	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("alladmin_%d", time.Now().UnixNano()))
	userToken, userID := registerAndLogin(t, app, fmt.Sprintf("alluser_%d", time.Now().UnixNano()))
	projectID := createTestProject(t, app, adminToken, "ReadAll Project")
	createTestTask(t, app, adminToken, projectID, map[string]interface{}{
		"title": "One", "assignee_id": userID,
	})
	createTestTask(t, app, adminToken, projectID, map[string]interface{}{
		"title": "Two", "assignee_id": userID,
	})

	resp, _ := doJSON(t, app, "PUT", "/api/v1/notifications/read-all", userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	_, result := doJSON(t, app, "GET", "/api/v1/notifications/?unread=true", userToken, nil)
	if unread := result["data"].([]interface{}); len(unread) != 0 {
		t.Errorf("Expected 0 unread notifications, got %d", len(unread))
	}
}

func TestNotificationSettingsDefaultsAndUpdate(t *testing.T) {
	app := createTestApp()
	userToken, _ := registerAndLogin(t, app, fmt.Sprintf("settings_%d", time.Now().UnixNano()))

	// Tanpa baris preferensi, kedua channel aktif
	resp, result := doJSON(t, app, "GET", "/api/v1/notification-settings/", userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	data := result["data"].(map[string]interface{})
	if data["email_enabled"] != true || data["in_app_enabled"] != true {
		t.Errorf("Expected both channels enabled by default, got %v", data)
	}

	// Matikan email saja; in-app tidak dikirim dan harus tetap aktif
	resp, result = doJSON(t, app, "PUT", "/api/v1/notification-settings/", userToken, map[string]interface{}{
		"email_enabled": false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	data = result["data"].(map[string]interface{})
	if data["email_enabled"] != false {
		t.Errorf("Expected email disabled, got %v", data["email_enabled"])
	}
	if data["in_app_enabled"] != true {
		t.Errorf("Expected in-app untouched, got %v", data["in_app_enabled"])
	}

	resp, result = doJSON(t, app, "GET", "/api/v1/notification-settings/", userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	data = result["data"].(map[string]interface{})
	if data["email_enabled"] != false || data["in_app_enabled"] != true {
		t.Errorf("Settings not persisted: %v", data)
	}
}

func TestNotifyTaskAssignmentEndpoint(t *testing.T) {
	app := createTestApp()
	testMailer.reset()

	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("epadmin_%d", time.Now().UnixNano()))
	assignee := fmt.Sprintf("epuser_%d", time.Now().UnixNano())
	userToken, assigneeID := registerAndLogin(t, app, assignee)
	projectID := createTestProject(t, app, adminToken, "Endpoint Project")
	taskID := createTestTask(t, app, adminToken, projectID, map[string]interface{}{
		"title":       "Endpoint Task",
		"assignee_id": assigneeID,
	})
	testMailer.reset() // abaikan notifikasi dari pembuatan task

	resp, result := doJSON(t, app, "POST", "/api/v1/notifications/task-assignment", userToken, map[string]interface{}{
		"task_id": taskID,
		"event":   "task_updated",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	data := result["data"].(map[string]interface{})
	if data["notification_created"] != true {
		t.Errorf("Expected notification_created true, got %v", data["notification_created"])
	}
	if data["email_sent"] != true {
		t.Errorf("Expected email_sent true, got %v", data["email_sent"])
	}
	if emails := testMailer.sentTo(assignee + "@example.com"); len(emails) != 1 {
		t.Errorf("Expected 1 email, got %d", len(emails))
	} else if emails[0].Subject != "Task updated: Endpoint Task" {
		t.Errorf("Unexpected subject: %s", emails[0].Subject)
	}

	// Event di luar enum ditolak
	resp, _ = doJSON(t, app, "POST", "/api/v1/notifications/task-assignment", userToken, map[string]interface{}{
		"task_id": taskID,
		"event":   "task_deleted",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}

	// Task tanpa assignee -> 400
	bareTaskID := createTestTask(t, app, adminToken, projectID, map[string]interface{}{
		"title": "No Assignee",
	})
	resp, _ = doJSON(t, app, "POST", "/api/v1/notifications/task-assignment", userToken, map[string]interface{}{
		"task_id": bareTaskID,
		"event":   "task_assigned",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for task without assignee, got %d", resp.StatusCode)
	}

	// Task tidak ada -> 404
	resp, _ = doJSON(t, app, "POST", "/api/v1/notifications/task-assignment", userToken, map[string]interface{}{
		"task_id": 999999,
		"event":   "task_assigned",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
