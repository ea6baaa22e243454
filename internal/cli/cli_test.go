package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trail.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const memoryConfig = `
sink:
  backend: memory
dispatch:
  synchronous: true
log:
  level: error
`

func TestSchemaDDL(t *testing.T) {
	path := writeConfig(t, `
sink:
  backend: sqlite
  schema: v1
  table: app.trace
sqlite:
  path: ":memory:"
`)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "backend dialect",
			args: []string{"--config", path, "schema", "ddl"},
			want: []string{`CREATE TABLE IF NOT EXISTS "app"."trace"`, `"nodeId" TEXT NOT NULL UNIQUE`, `"elapsed" REAL`},
		},
		{
			name: "sqlserver dialect",
			args: []string{"--config", path, "schema", "ddl", "--dialect", "sqlserver"},
			want: []string{"IF OBJECT_ID(N'app.trace', N'U') IS NULL", "[nodeId] UNIQUEIDENTIFIER NOT NULL UNIQUE", "[elapsed] FLOAT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("schema ddl error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestSchemaCreateAndTruncate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trail.db")
	path := writeConfig(t, "sink:\n  backend: sqlite\nsqlite:\n  path: "+db+"\n")

	out, err := run(t, "--config", path, "schema", "create")
	if err != nil || !strings.Contains(out, "table ready") {
		t.Fatalf("schema create = %q, %v", out, err)
	}
	out, err = run(t, "--config", path, "schema", "truncate")
	if err != nil || !strings.Contains(out, "table truncated") {
		t.Fatalf("schema truncate = %q, %v", out, err)
	}
}

func TestSchemaRequiresSQLBackend(t *testing.T) {
	path := writeConfig(t, memoryConfig)
	if _, err := run(t, "--config", path, "schema", "create"); err == nil {
		t.Error("schema create on the memory backend succeeded, want error")
	}
	if _, err := run(t, "--config", path, "schema", "ddl"); err == nil {
		t.Error("schema ddl without a SQL dialect succeeded, want error")
	}
}

func TestDemo(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	tests := []struct {
		name  string
		args  []string
		lines int
		want  []string
	}{
		{
			name: "success",
			args: []string{"--rows", "2"},
			// Starting, 2 items, metric, Validate end, Done, Import end
			lines: 7,
			want:  []string{". Import | info |", ".. Validate | item |", ".. Validate | metric |", "| Done |"},
		},
		{
			name: "failing row",
			args: []string{"--rows", "3", "--fail-row", "1"},
			// Starting, 1 item, Validate error, Import error
			lines: 4,
			want:  []string{"bad checksum", "import failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"--config", path, "demo"}, tt.args...)...)
			if err != nil {
				t.Fatalf("demo error = %v", err)
			}
			traced := 0
			for _, line := range strings.Split(out, "\n") {
				if strings.Contains(line, "node://") {
					traced++
				}
			}
			if traced != tt.lines {
				t.Errorf("traced lines = %d, want %d:\n%s", traced, tt.lines, out)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestHealth(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t, memoryConfig), "health")
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result.Status != "healthy" {
		t.Errorf("status = %s, want healthy", result.Status)
	}
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("TRAILTEST_SINK_BACKEND", "postgres")
	t.Setenv("TRAILTEST_DATABASE_HOST", "db")
	t.Setenv("TRAILTEST_DATABASE_USER", "trail")
	t.Setenv("TRAILTEST_DATABASE_DATABASE", "trail")

	out, err := run(t, "--env-prefix", "TRAILTEST", "schema", "ddl")
	if err != nil {
		t.Fatalf("schema ddl error = %v", err)
	}
	if !strings.Contains(out, `"unique_id" UUID NOT NULL UNIQUE`) {
		t.Errorf("output is not postgres DDL:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, `"name": "trail"`) {
		t.Errorf("version output = %s", out)
	}
}
