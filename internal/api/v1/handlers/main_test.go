package handlers_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"taskhive/configs"
	v1 "taskhive/internal/api/v1"
	"taskhive/internal/config"
	"taskhive/internal/middleware"
	"taskhive/internal/repository"
	myws "taskhive/internal/websocket"
	"taskhive/pkg/database"
	"taskhive/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// fakeSender merekam email yang "terkirim" selama test.
type fakeSender struct {
	mu   sync.Mutex
	fail bool
	sent []sentEmail
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = false
	f.sent = nil
}

func (f *fakeSender) sentTo(to string) []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEmail
	for _, e := range f.sent {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

var testMailer = &fakeSender{}

func connectDBTest(cfg configs.Config) *sql.DB {
	psqlconn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBNameTest)
	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	return db
}

func TestMain(m *testing.M) {
	// Initialize logger for testing
	logger.InitLoggers()
	defer logger.SyncLoggers()

	// Set GO_ENV to "test" so LoadConfig does not print .env logs
	os.Setenv("GO_ENV", "test")

	// Try to load .env (if exists)
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../../../.env"); err != nil {
			logger.SystemLogger.Info("No .env file found, using default values")
		}
	}

	// Initialize database for testing
	cfg := configs.LoadConfig()
	config.SecretKey = []byte(cfg.JWTSecret)
	config.DB = connectDBTest(cfg)
	defer config.DB.Close()

	// Create tables if they don't exist (or reset tables for testing)
	repository.CreateTableIfNotExists(config.DB)

	// Initialize Redis client
	config.RedisClient = database.ConnectRedis(cfg)
	defer config.RedisClient.Close()

	// Mailer palsu supaya tidak ada email sungguhan saat test
	config.Mailer = testMailer

	// Hub realtime
	config.Hub = myws.NewHub()
	go config.Hub.Run()

	// Run all tests
	code := m.Run()

	// Clean up: delete all tables so the database is empty after tests
	repository.DeleteAllTable(config.DB)

	os.Exit(code)
}

// createTestApp menginisialisasi aplikasi Fiber dengan route yang akan di-test
func createTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})
	app.Use(middleware.ErrorHandler())
	v1.RegisterRoutes(app, config.Hub)
	return app
}

// doJSON mengirim request JSON dan mendecode response body-nya.
func doJSON(t *testing.T, app *fiber.App, method, url, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Error encoding request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, url, err)
	}

	var result map[string]interface{}
	if resp.Body != nil {
		defer resp.Body.Close()
		_ = json.NewDecoder(resp.Body).Decode(&result)
	}
	return resp, result
}

// registerAndLogin mendaftarkan user baru lewat endpoint dan login
// untuk mendapatkan token.
func registerAndLogin(t *testing.T, app *fiber.App, username string) (string, int) {
	t.Helper()

	resp, _ := doJSON(t, app, "POST", "/api/v1/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Register expected 201, got %d", resp.StatusCode)
	}

	return login(t, app, username, "password123")
}

func login(t *testing.T, app *fiber.App, username, password string) (string, int) {
	t.Helper()

	resp, result := doJSON(t, app, "POST", "/api/v1/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login expected 200, got %d", resp.StatusCode)
	}

	data := result["data"].(map[string]interface{})
	token := data["token"].(string)
	if token == "" {
		t.Fatalf("Expected valid token")
	}
	return token, int(data["user_id"].(float64))
}

// createTestAdmin menyisipkan user admin langsung ke database dan login
// untuk mendapatkan token.
func createTestAdmin(t *testing.T, app *fiber.App, username string) (string, int) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("adminpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("Error hashing password: %v", err)
	}
	_, err = config.DB.Exec(
		"INSERT INTO users (username, email, password, role) VALUES ($1, $2, $3, 'admin')",
		username, username+"@example.com", string(hashed))
	if err != nil {
		t.Fatalf("Error inserting admin user: %v", err)
	}

	return login(t, app, username, "adminpass")
}

// createTestProject membuat project lewat endpoint admin.
func createTestProject(t *testing.T, app *fiber.App, adminToken, name string) int {
	t.Helper()

	resp, result := doJSON(t, app, "POST", "/api/v1/projects/", adminToken, map[string]interface{}{
		"name": name,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("CreateProject expected 201, got %d", resp.StatusCode)
	}
	return int(result["id"].(float64))
}

// createTestTask membuat task lewat endpoint admin.
func createTestTask(t *testing.T, app *fiber.App, adminToken string, projectID int, body map[string]interface{}) int {
	t.Helper()

	if body == nil {
		body = map[string]interface{}{}
	}
	body["project_id"] = projectID
	if _, ok := body["title"]; !ok {
		body["title"] = "Test Task"
	}

	resp, result := doJSON(t, app, "POST", "/api/v1/tasks/", adminToken, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("CreateTask expected 201, got %d", resp.StatusCode)
	}
	return int(result["id"].(float64))
}
