package config

import (
	"os"
	"testing"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/mockmate_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)
	for _, key := range []string{
		"MODEL_PROVIDER", "MODEL_NAME", "MODEL_MAX_RETRIES",
		"MODEL_CONCURRENT_REQUESTS", "AGENT_MEMORY_WINDOW", "WORKER_COUNT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.ModelProvider != "gemini" {
		t.Errorf("Expected provider gemini, got %q", cfg.ModelProvider)
	}
	if cfg.ModelName != "gemini-2.5-flash" {
		t.Errorf("Expected default model, got %q", cfg.ModelName)
	}
	if cfg.ModelMaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.ModelMaxRetries)
	}
	if cfg.ModelConcurrentReqs != 5 {
		t.Errorf("Expected 5 concurrent requests, got %d", cfg.ModelConcurrentReqs)
	}
	if cfg.MemoryWindow != 20 {
		t.Errorf("Expected memory window 20, got %d", cfg.MemoryWindow)
	}
	if cfg.WorkerCount != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.WorkerCount)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MODEL_MAX_RETRIES", "5")
	t.Setenv("AGENT_MEMORY_WINDOW", "8")
	t.Setenv("WORKER_COUNT", "1")

	cfg := Load()

	if cfg.ModelMaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", cfg.ModelMaxRetries)
	}
	if cfg.MemoryWindow != 8 {
		t.Errorf("Expected memory window 8, got %d", cfg.MemoryWindow)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("Expected 1 worker, got %d", cfg.WorkerCount)
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}
