package handlers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCreateProjectRequiresAdmin(t *testing.T) {
	app := createTestApp()
	userToken, _ := registerAndLogin(t, app, fmt.Sprintf("projuser_%d", time.Now().UnixNano()))

	resp, _ := doJSON(t, app, "POST", "/api/v1/projects/", userToken, map[string]interface{}{
		"name": "Forbidden Project",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestProjectVisibility(t *testing.T) {
	app := createTestApp()
	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("projadmin_%d", time.Now().UnixNano()))
	memberToken, memberID := registerAndLogin(t, app, fmt.Sprintf("member_%d", time.Now().UnixNano()))
	outsiderToken, _ := registerAndLogin(t, app, fmt.Sprintf("outsider_%d", time.Now().UnixNano()))

	projectID := createTestProject(t, app, adminToken, "Visibility Project")

	// Tambahkan member ke project
	resp, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/v1/projects/%d/members", projectID), adminToken, map[string]interface{}{
		"user_id": memberID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("AddMember expected 201, got %d", resp.StatusCode)
	}

	// Member boleh melihat project
	resp, _ = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/projects/%d", projectID), memberToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Member expected 200, got %d", resp.StatusCode)
	}

	// Non-member mendapat 404, bukan 403: keberadaan project tidak bocor
	resp, _ = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/projects/%d", projectID), outsiderToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Outsider expected 404, got %d", resp.StatusCode)
	}

	// Admin melihat semua project
	resp, _ = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/projects/%d", projectID), adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Admin expected 200, got %d", resp.StatusCode)
	}
}

func TestListProjectsScoped(t *testing.T) {
	app := createTestApp()
	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("listadmin_%d", time.Now().UnixNano()))
	memberToken, memberID := registerAndLogin(t, app, fmt.Sprintf("listmember_%d", time.Now().UnixNano()))

	visibleID := createTestProject(t, app, adminToken, "Member Project")
	hiddenID := createTestProject(t, app, adminToken, "Hidden Project")

	resp, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/v1/projects/%d/members", visibleID), adminToken, map[string]interface{}{
		"user_id": memberID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("AddMember expected 201, got %d", resp.StatusCode)
	}

	resp, result := doJSON(t, app, "GET", "/api/v1/projects/", memberToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	seen := map[int]bool{}
	for _, item := range result["data"].([]interface{}) {
		project := item.(map[string]interface{})
		seen[int(project["id"].(float64))] = true
	}
	if !seen[visibleID] {
		t.Errorf("Expected project %d in member's list", visibleID)
	}
	if seen[hiddenID] {
		t.Errorf("Project %d should not be visible to member", hiddenID)
	}
}

func TestUpdateProject(t *testing.T) {
	app := createTestApp()
	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("upadmin_%d", time.Now().UnixNano()))
	projectID := createTestProject(t, app, adminToken, "Before Update")

	// Partial update: hanya status yang diganti, nama tetap
	resp, result := doJSON(t, app, "PUT", fmt.Sprintf("/api/v1/projects/%d", projectID), adminToken, map[string]interface{}{
		"status": "completed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	data := result["data"].(map[string]interface{})
	if data["status"] != "completed" {
		t.Errorf("Expected status 'completed', got %v", data["status"])
	}
	if data["name"] != "Before Update" {
		t.Errorf("Expected name unchanged, got %v", data["name"])
	}

	// Status di luar enum ditolak
	resp, _ = doJSON(t, app, "PUT", fmt.Sprintf("/api/v1/projects/%d", projectID), adminToken, map[string]interface{}{
		"status": "paused",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid status, got %d", resp.StatusCode)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	app := createTestApp()
	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("deladmin_%d", time.Now().UnixNano()))
	projectID := createTestProject(t, app, adminToken, "Doomed Project")
	taskID := createTestTask(t, app, adminToken, projectID, nil)

	resp, _ := doJSON(t, app, "DELETE", fmt.Sprintf("/api/v1/projects/%d", projectID), adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	// Task ikut terhapus lewat cascade
	resp, _ = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/tasks/%d", taskID), adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for cascaded task, got %d", resp.StatusCode)
	}

	// Menghapus project yang sudah tidak ada -> 404
	resp, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/v1/projects/%d", projectID), adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestProjectMembers(t *testing.T) {
	app := createTestApp()
	adminToken, _ := createTestAdmin(t, app, fmt.Sprintf("memadmin_%d", time.Now().UnixNano()))
	_, memberID := registerAndLogin(t, app, fmt.Sprintf("newmember_%d", time.Now().UnixNano()))
	projectID := createTestProject(t, app, adminToken, "Member Project")

	resp, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/v1/projects/%d/members", projectID), adminToken, map[string]interface{}{
		"user_id": memberID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	// Menambahkan member yang sama dua kali -> 409
	resp, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/v1/projects/%d/members", projectID), adminToken, map[string]interface{}{
		"user_id": memberID,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate member, got %d", resp.StatusCode)
	}

	// User yang tidak ada -> 400 (FK violation)
	resp, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/v1/projects/%d/members", projectID), adminToken, map[string]interface{}{
		"user_id": 999999,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown user, got %d", resp.StatusCode)
	}

	resp, result := doJSON(t, app, "GET", fmt.Sprintf("/api/v1/projects/%d/members", projectID), adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	members := result["data"].([]interface{})
	if len(members) != 1 {
		t.Fatalf("Expected 1 member, got %d", len(members))
	}

	resp, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/v1/projects/%d/members/%d", projectID, memberID), adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/v1/projects/%d/members/%d", projectID, memberID), adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
