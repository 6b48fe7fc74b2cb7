package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/arkilian/vectorlayer/internal/source/sourcetest"
)

type cli struct {
	t       *testing.T
	dataDir string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, dataDir: t.TempDir()}
}

// run executes one command and returns its exit code, stdout and stderr.
func (c *cli) run(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	full := append([]string{"-data-dir", c.dataDir, "-transformer", "mercator", "-log-level", "error"}, args...)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) mustRun(stdin string, args ...string) string {
	c.t.Helper()
	code, out, errOut := c.run(stdin, args...)
	if code != 0 {
		c.t.Fatalf("%v exited %d: %s", args, code, errOut)
	}
	return out
}

func decodeLines(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestCLI_Lifecycle(t *testing.T) {
	c := newCLI(t)
	archive := sourcetest.PointArchive(t, [][2]float64{{0, 0}, {10, 10}, {-20, 45}},
		[][]interface{}{{"Alpha", 100}, {"Beta", 200}, {"Gamma", 300}})

	out := decodeLines(t, c.mustRun("", "import", "-layer", "places", archive))
	if len(out) != 1 || out[0]["feature_count"] != float64(3) || out[0]["geometry_type"] != "MULTIPOINT" {
		t.Fatalf("import output = %v", out)
	}

	out = decodeLines(t, c.mustRun("", "query", "-layer", "places", "-geom", "-limit", "2", "-offset", "1", "-count"))
	if len(out) != 3 {
		t.Fatalf("query output = %v", out)
	}
	if out[0]["id"] != float64(2) || out[1]["id"] != float64(3) || out[2]["total"] != float64(3) {
		t.Errorf("query ids/total = %v", out)
	}
	geom, _ := out[0]["geometry"].(map[string]interface{})
	if geom["type"] != "MultiPoint" {
		t.Errorf("geometry = %v, want GeoJSON MultiPoint", out[0]["geometry"])
	}

	put := `{"id": 2, "fields": {"name": "Bravo"}}
{"id": 7, "fields": {"name": "Golf", "pop": 70}, "geometry": {"type": "Point", "coordinates": [1, 2]}}
`
	out = decodeLines(t, c.mustRun(put, "put", "-layer", "places"))
	if out[0]["written"] != float64(2) {
		t.Errorf("put output = %v", out)
	}

	c.mustRun("", "rename", "-layer", "places", "name", "title")

	out = decodeLines(t, c.mustRun("", "query", "-layer", "places", "-like", "RAV", "-fields", "title"))
	if len(out) != 1 || out[0]["id"] != float64(2) {
		t.Fatalf("like query = %v", out)
	}
	fields := out[0]["fields"].(map[string]interface{})
	if fields["title"] != "Bravo" || len(fields) != 1 {
		t.Errorf("fields = %v", fields)
	}

	out = decodeLines(t, c.mustRun("", "query", "-layer", "places", "-filter", "pop=70", "-box",
		"-intersects", `{"type": "Polygon", "coordinates": [[[0, 0], [5, 0], [5, 5], [0, 5], [0, 0]]]}`))
	if len(out) != 1 || out[0]["id"] != float64(7) || out[0]["bbox"] == nil {
		t.Errorf("filtered spatial query = %v", out)
	}

	out = decodeLines(t, c.mustRun("", "layers"))
	if len(out) != 1 || out[0]["layer_id"] != "places" || out[0]["feature_count"] != float64(4) {
		t.Errorf("layers = %v", out)
	}

	c.mustRun("", "drop", "-layer", "places")
	if out := strings.TrimSpace(c.mustRun("", "layers")); out != "" {
		t.Errorf("layers after drop = %q", out)
	}
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"no command", nil, 2, "Usage"},
		{"unknown command", []string{"frobnicate"}, 2, "unknown command"},
		{"query without layer", []string{"query"}, 2, "-layer is required"},
		{"missing layer", []string{"drop", "-layer", "nowhere"}, 1, "LAYER_NOT_FOUND"},
		{"import without archive", []string{"import"}, 2, "exactly one archive"},
		{"not an archive", []string{"import", "/nonexistent.zip"}, 1, "NOT_AN_ARCHIVE"},
		{"bad intersects", []string{"query", "-layer", "x", "-intersects", "{"}, 2, "invalid -intersects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := c.run("", tt.args...)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d (%s)", code, tt.code, stderr)
			}
			if !strings.Contains(stderr, tt.stderr) {
				t.Errorf("stderr %q does not mention %q", stderr, tt.stderr)
			}
		})
	}
}

func TestCLI_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-version"}, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "vectorlayer version ") {
		t.Errorf("stdout = %q", stdout.String())
	}
}
