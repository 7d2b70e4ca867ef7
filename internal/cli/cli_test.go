package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adda-Baaj/trendwatch/internal/api"
	"github.com/Adda-Baaj/trendwatch/internal/domain"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "log_level: error\nhistory:\n  backend: memory\nhttp:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "trendwatch 1.2.3 (commit: abc, built: today)\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestDecodeArticles(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "array", in: `[{"title":"a","url":"https://x/1"},{"title":"b","url":"https://x/2"}]`, want: 2},
		{name: "wrapped", in: `{"articles":[{"title":"a","url":"https://x/1"}]}`, want: 1},
		{name: "missing key", in: `{"items":[]}`, wantErr: true},
		{name: "garbage", in: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeArticles(strings.NewReader(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d articles, want %d", len(got), tt.want)
			}
		})
	}
}

func TestClassifyCommand(t *testing.T) {
	cfg := writeConfig(t)
	stdin := `[
		{"provider_id":"reuters","title":"Petróleo dispara com guerra","url":"https://reuters.example.com/p1"},
		{"provider_id":"g1","title":"Petróleo dispara com a guerra","url":"https://g1.example.com/p2"},
		{"provider_id":"g1","title":"Time vence campeonato","url":"https://g1.example.com/p3"}
	]`

	out, err := execute(t, stdin, "--config", cfg, "classify")
	if err != nil {
		t.Fatalf("classify: %v\n%s", err, out)
	}

	var resp api.ClassifyResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Impact != domain.ImpactHigh || resp.Results[0].Sources != 2 {
		t.Errorf("first = %+v", resp.Results[0])
	}
	if len(resp.Results[2].Categories) != 0 || resp.Results[2].Impact != domain.ImpactNormal {
		t.Errorf("sports story = %+v", resp.Results[2])
	}
}

func TestClassifyCommandMissingFile(t *testing.T) {
	_, err := execute(t, "", "--config", writeConfig(t), "classify", filepath.Join(t.TempDir(), "none.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestProvidersCommand(t *testing.T) {
	out, err := execute(t, "", "--config", writeConfig(t), "providers")
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "g1") {
		t.Fatalf("g1 missing from %q", out)
	}
}
