package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"live-response-service/internal/app"
	"live-response-service/internal/domain"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	for _, key := range []string{"PORT", "STORAGE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "REDIS_ADDR", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(dir, "config.yaml")
	yaml := "log:\n  level: error\nstorage:\n  driver: sqlite\nsqlite:\n  path: " + filepath.Join(dir, "test.db") + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func seedQuestion(t *testing.T, cfgPath string) string {
	t.Helper()
	ctx := context.Background()
	rt, err := loadRuntime(ctx, cfgPath)
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	defer rt.Close()

	q, err := rt.service.CreateQuestion(ctx, app.CreateQuestionRequest{
		TeacherID: "kim",
		Type:      domain.QuestionTypeText,
		Content:   "오늘 배운 것",
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	r, err := rt.service.BeginResponse(ctx, q.ID, app.BeginRequest{StudentNumber: "1", Nickname: "민수"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := rt.service.SubmitResponse(ctx, r.ID, app.SubmitRequest{TextAnswer: "분수 나눗셈 분수"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return q.ID
}

func TestExportCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	questionID := seedQuestion(t, cfgPath)

	out := filepath.Join(dir, "export.xlsx")
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"export", questionID, "--config", cfgPath, "--format", "xlsx", "-o", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected export file, err=%v", err)
	}
	if strings.TrimSpace(stdout.String()) != out {
		t.Fatalf("expected output path printed, got %q", stdout.String())
	}
}

func TestWordCloudCommandPrintsJSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	questionID := seedQuestion(t, cfgPath)

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"wordcloud", questionID, "--config", cfgPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("wordcloud: %v", err)
	}
	if !strings.Contains(stdout.String(), `"text": "분수"`) {
		t.Fatalf("expected word in output, got %s", stdout.String())
	}
}

func TestUnknownStorageDriver(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STORAGE_DRIVER", "cassandra")
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadRuntime(context.Background(), path); err == nil {
		t.Fatalf("expected error for unknown storage driver")
	}
}
