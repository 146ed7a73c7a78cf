package api

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestOpenAPIContainsImplementedPaths(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	openAPIPath := filepath.Join(repoRoot, "api", "openapi.yaml")

	content, err := os.ReadFile(openAPIPath)
	if err != nil {
		t.Fatalf("read openapi file error = %v", err)
	}
	text := string(content)

	requiredPaths := []string{
		"/v1/health:",
		"/v1/ready:",
		"/v1/metrics:",
		"/v1/ask:",
		"/v1/dataset:",
		"/v1/dataset/refresh:",
	}
	for _, path := range requiredPaths {
		if !strings.Contains(text, path) {
			t.Fatalf("openapi missing path %s", path)
		}
	}
	for _, code := range []string{
		"QUESTION_REQUIRED",
		"DATASET_NOT_LOADED",
		"EXTRACTION_PARSE_FAILED",
		"MALFORMED_SQL",
		"QUERY_EXECUTION_FAILED",
		"MODEL_CALL_FAILED",
	} {
		if !strings.Contains(text, code) {
			t.Fatalf("openapi missing error code %s", code)
		}
	}
}
