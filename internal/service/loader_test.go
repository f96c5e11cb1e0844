package service

import (
	"os"
	"path/filepath"
	"testing"
)

func writeServiceYAML(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "service.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

/**
 * Test loading a service declaration from a directory
 */
func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeServiceYAML(t, dir, `
name: sentiment
version: "2.1"
runners:
  - name: embedder
    cpu: 1.5
  - name: classifier
    workers: 3
`)

	d, err := Load(".", dir, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d.Name != "sentiment" || d.Version != "2.1" {
		t.Errorf("unexpected identity: %s %s", d.Name, d.Version)
	}
	names := d.RunnerNames()
	if len(names) != 2 || names[0] != "embedder" || names[1] != "classifier" {
		t.Errorf("unexpected runner names %v", names)
	}
}

/**
 * Test loading through an explicit yaml file path
 */
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("name: svc\nrunners: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path, dir, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d.Name != "svc" || len(d.Runners) != 0 {
		t.Errorf("unexpected descriptor %+v", d)
	}

	d, err = Load("custom.yaml", dir, false)
	if err != nil {
		t.Fatalf("relative file load failed: %v", err)
	}
	if d.Name != "svc" {
		t.Errorf("unexpected descriptor %+v", d)
	}
}

/**
 * Test declaration validation
 * @description
 * - Empty names, reserved leading underscores and duplicates are rejected
 */
func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"empty_name": `
runners:
  - name: ""
`,
		"reserved_underscore": `
runners:
  - name: _api_server
`,
		"duplicate": `
runners:
  - name: embedder
  - name: embedder
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeServiceYAML(t, dir, content)
			if _, err := Load(".", dir, false); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

func TestLoadMissingWorkingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := Load(".", missing, false); err == nil {
		t.Error("expected an error for an inaccessible working directory")
	}
	// Standalone loading skips the working directory check but still needs
	// a readable declaration.
	if _, err := Load(".", missing, true); err == nil {
		t.Error("expected an error for a missing declaration")
	}
}

/**
 * Test worker count scheduling: explicit count, cpu ceiling, minimum of one
 */
func TestScheduledWorkerCount(t *testing.T) {
	cases := []struct {
		runner Runner
		want   int
	}{
		{Runner{Workers: 4}, 4},
		{Runner{Workers: 2, CPU: 8}, 2},
		{Runner{CPU: 1.5}, 2},
		{Runner{CPU: 3}, 3},
		{Runner{CPU: 0.2}, 1},
		{Runner{}, 1},
	}
	for _, c := range cases {
		if got := c.runner.ScheduledWorkerCount(); got != c.want {
			t.Errorf("%+v: expected %d workers, got %d", c.runner, c.want, got)
		}
	}
}
