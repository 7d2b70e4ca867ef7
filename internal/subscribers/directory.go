// Package subscribers holds the people alerts are addressed to and decides,
// per alert, who is eligible to receive it.
package subscribers

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"

	"gopkg.in/yaml.v3"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanPro       Plan = "pro"
	PlanProAnnual Plan = "pro_annual"
)

// Subscriber is one alert recipient.
type Subscriber struct {
	Name         string            `yaml:"name" json:"name"`
	Phone        string            `yaml:"phone" json:"phone"`
	Plan         Plan              `yaml:"plan" json:"plan"`
	TrialExpires *time.Time        `yaml:"trial_expires" json:"trial_expires,omitempty"`
	Categories   []domain.Category `yaml:"categories" json:"categories,omitempty"`
}

// Eligible reports whether the subscriber may receive alerts at now: any paid
// plan, or a free plan still inside its trial.
func (s Subscriber) Eligible(now time.Time) bool {
	if s.Plan != PlanFree {
		return true
	}
	return s.TrialExpires != nil && s.TrialExpires.After(now)
}

// Wants reports whether any of cats is among the subscriber's preferences.
// A subscriber without preferences wants every category.
func (s Subscriber) Wants(cats []domain.Category) bool {
	if len(s.Categories) == 0 {
		return len(cats) > 0
	}
	for _, c := range cats {
		if slices.Contains(s.Categories, c) {
			return true
		}
	}
	return false
}

type directoryFile struct {
	Subscribers []Subscriber `yaml:"subscribers"`
}

// Directory is an immutable set of subscribers.
type Directory struct {
	subs []Subscriber
}

// NewDirectory validates subs and returns a directory over normalized copies.
func NewDirectory(subs []Subscriber) (*Directory, error) {
	out := make([]Subscriber, 0, len(subs))
	phones := make(map[string]struct{}, len(subs))
	for i, s := range subs {
		s, err := normalize(s)
		if err != nil {
			return nil, fmt.Errorf("subscribers[%d]: %w", i, err)
		}
		if _, dup := phones[s.Phone]; dup {
			return nil, fmt.Errorf("subscribers[%d]: duplicate phone %s", i, s.Phone)
		}
		phones[s.Phone] = struct{}{}
		out = append(out, s)
	}
	return &Directory{subs: out}, nil
}

// LoadDirectory reads a YAML subscribers file. An empty path yields an empty directory.
func LoadDirectory(path string) (*Directory, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Directory{}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subscribers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read subscribers file: %w", err)
	}
	return ParseDirectory(raw)
}

// ParseDirectory decodes a YAML subscribers document, expanding ${ENV} references.
func ParseDirectory(raw []byte) (*Directory, error) {
	var file directoryFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("decode subscribers: %w", err)
	}
	return NewDirectory(file.Subscribers)
}

func normalize(s Subscriber) (Subscriber, error) {
	s.Name = strings.TrimSpace(s.Name)

	phone, err := NormalizePhone(s.Phone)
	if err != nil {
		return s, fmt.Errorf("%s: %w", s.Phone, err)
	}
	s.Phone = phone

	plan := Plan(strings.ToLower(strings.TrimSpace(string(s.Plan))))
	switch plan {
	case "":
		plan = PlanFree
	case PlanFree, PlanPro, PlanProAnnual:
	default:
		return s, fmt.Errorf("%s: unknown plan %q", phone, s.Plan)
	}
	s.Plan = plan

	var cats []domain.Category
	for _, raw := range s.Categories {
		c, ok := domain.ParseCategory(string(raw))
		if !ok {
			return s, fmt.Errorf("%s: unknown category %q", phone, raw)
		}
		if !slices.Contains(cats, c) {
			cats = append(cats, c)
		}
	}
	s.Categories = cats
	return s, nil
}

// Len returns the number of subscribers.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.subs)
}

// All returns a copy of every subscriber.
func (d *Directory) All() []Subscriber {
	if d == nil {
		return nil
	}
	return slices.Clone(d.subs)
}

// Recipients returns the eligible subscribers that want at least one of cats,
// in directory order.
func (d *Directory) Recipients(cats []domain.Category, now time.Time) []Subscriber {
	if d == nil || len(cats) == 0 {
		return nil
	}
	var out []Subscriber
	for _, s := range d.subs {
		if s.Eligible(now) && s.Wants(cats) {
			out = append(out, s)
		}
	}
	return out
}
