package subscribers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
		ok       bool
	}{
		{"+55 (51) 99999-9999", "5551999999999", true},
		{"51999999999", "5551999999999", true},
		{"5199999999", "5551999999999", true},
		{"11 98765-4321", "5511987654321", true},
		{"5501999999999", "", false},
		{"5551899999999", "", false},
		{"123", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("NormalizePhone(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("NormalizePhone(%q) = %q, %v; want ErrInvalidPhone", tc.in, got, err)
		}
	}
}

func TestEligible(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name string
		sub  Subscriber
		want bool
	}{
		{"pro", Subscriber{Plan: PlanPro}, true},
		{"annual expired trial", Subscriber{Plan: PlanProAnnual, TrialExpires: &past}, true},
		{"free in trial", Subscriber{Plan: PlanFree, TrialExpires: &future}, true},
		{"free trial over", Subscriber{Plan: PlanFree, TrialExpires: &past}, false},
		{"free no trial", Subscriber{Plan: PlanFree}, false},
	}
	for _, tc := range cases {
		if got := tc.sub.Eligible(now); got != tc.want {
			t.Errorf("%s: Eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

const directoryYAML = `
subscribers:
  - name: Ana
    phone: "(51) 99999-9999"
    plan: PRO
    categories: [economy, Markets]
  - name: Bruno
    phone: "11987654321"
    plan: free
    trial_expires: 2026-03-20T00:00:00Z
  - name: Carla
    phone: "21987654321"
    plan: free
    trial_expires: 2026-01-01T00:00:00Z
  - name: Davi
    phone: "31987654321"
    plan: pro_annual
    categories: [geopolitics]
`

func TestDirectoryRecipients(t *testing.T) {
	dir, err := ParseDirectory([]byte(directoryYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if dir.Len() != 4 {
		t.Fatalf("expected 4 subscribers, got %d", dir.Len())
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	names := func(subs []Subscriber) []string {
		var out []string
		for _, s := range subs {
			out = append(out, s.Name)
		}
		return out
	}

	got := names(dir.Recipients([]domain.Category{domain.CategoryMarkets}, now))
	if len(got) != 2 || got[0] != "Ana" || got[1] != "Bruno" {
		t.Errorf("markets recipients = %v", got)
	}
	got = names(dir.Recipients([]domain.Category{domain.CategoryGeopolitics}, now))
	if len(got) != 2 || got[0] != "Bruno" || got[1] != "Davi" {
		t.Errorf("geopolitics recipients = %v", got)
	}
	if got := dir.Recipients(nil, now); len(got) != 0 {
		t.Errorf("no categories should reach nobody, got %v", names(got))
	}

	ana := dir.All()[0]
	if ana.Phone != "5551999999999" || ana.Plan != PlanPro || len(ana.Categories) != 2 {
		t.Errorf("normalized = %+v", ana)
	}
}

func TestParseDirectoryRejects(t *testing.T) {
	cases := map[string]string{
		"bad phone":    "subscribers:\n  - name: x\n    phone: '123'\n",
		"bad plan":     "subscribers:\n  - name: x\n    phone: '51999999999'\n    plan: gold\n",
		"bad category": "subscribers:\n  - name: x\n    phone: '51999999999'\n    categories: [sports]\n",
		"duplicate":    "subscribers:\n  - name: x\n    phone: '51999999999'\n  - name: y\n    phone: '+55 51 99999 9999'\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDirectory([]byte(raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	empty, err := LoadDirectory("")
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty path: %v len=%d", err, empty.Len())
	}

	path := filepath.Join(t.TempDir(), "subscribers.yaml")
	if err := os.WriteFile(path, []byte(directoryYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir, err := LoadDirectory(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if dir.Len() != 4 {
		t.Fatalf("len = %d", dir.Len())
	}
	if _, err := LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
