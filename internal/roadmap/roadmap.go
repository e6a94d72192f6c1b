// Package roadmap holds the Peridot Finance milestones the guide knows about
// and renders them into the system instruction shared by the live session and
// the chat assistant.
package roadmap

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed roadmap.yaml
var defaultRoadmap []byte

// Status is the delivery state of a milestone.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in_progress"
	StatusUpcoming   Status = "upcoming"
	StatusFuture     Status = "future"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusCompleted, StatusInProgress, StatusUpcoming, StatusFuture:
		return true
	}
	return false
}

// Category groups milestones by area.
type Category string

const (
	CategoryFoundation Category = "Foundation"
	CategoryExpansion  Category = "Expansion"
	CategoryProduct    Category = "Product"
	CategoryTech       Category = "Tech"
)

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryFoundation, CategoryExpansion, CategoryProduct, CategoryTech:
		return true
	}
	return false
}

// Milestone is a single roadmap entry.
type Milestone struct {
	ID              string   `yaml:"id"               json:"id"`
	Date            string   `yaml:"date"             json:"date"`
	Title           string   `yaml:"title"            json:"title"`
	Description     string   `yaml:"description"      json:"description"`
	LongDescription string   `yaml:"long_description" json:"longDescription"`
	Status          Status   `yaml:"status"           json:"status"`
	Category        Category `yaml:"category"         json:"category"`
	Icon            string   `yaml:"icon"             json:"icon"`
}

// Roadmap is an ordered list of milestones.
type Roadmap struct {
	// Terms are proper nouns used to correct speech transcripts.
	Terms []string `yaml:"terms"`

	Milestones []Milestone `yaml:"milestones"`
}

// ErrEmpty is returned when a roadmap file holds no milestones.
var ErrEmpty = errors.New("roadmap: no milestones")

// Default returns the embedded roadmap.
func Default() *Roadmap {
	r, err := Parse(bytes.NewReader(defaultRoadmap))
	if err != nil {
		panic(fmt.Sprintf("roadmap: embedded roadmap is invalid: %v", err))
	}
	return r
}

// Load reads a roadmap from the YAML file at path. An empty path returns the
// embedded roadmap.
func Load(path string) (*Roadmap, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roadmap: open %q: %w", path, err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("roadmap: parse %q: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a YAML roadmap.
func Parse(r io.Reader) (*Roadmap, error) {
	rm := &Roadmap{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(rm); err != nil {
		return nil, fmt.Errorf("roadmap: decode yaml: %w", err)
	}
	if err := rm.Validate(); err != nil {
		return nil, err
	}
	return rm, nil
}

// Validate checks every milestone and returns all problems found.
func (r *Roadmap) Validate() error {
	if len(r.Milestones) == 0 {
		return ErrEmpty
	}
	var errs []error
	seen := make(map[string]bool, len(r.Milestones))
	for i, m := range r.Milestones {
		switch {
		case m.ID == "":
			errs = append(errs, fmt.Errorf("milestones[%d].id is required", i))
		case seen[m.ID]:
			errs = append(errs, fmt.Errorf("milestones[%d].id %q is duplicated", i, m.ID))
		}
		seen[m.ID] = true
		if m.Title == "" {
			errs = append(errs, fmt.Errorf("milestones[%d].title is required", i))
		}
		if !m.Status.IsValid() {
			errs = append(errs, fmt.Errorf("milestones[%d].status %q is invalid; valid values: completed, in_progress, upcoming, future", i, m.Status))
		}
		if !m.Category.IsValid() {
			errs = append(errs, fmt.Errorf("milestones[%d].category %q is invalid; valid values: Foundation, Expansion, Product, Tech", i, m.Category))
		}
	}
	return errors.Join(errs...)
}

// Vocabulary returns the distinct non-empty terms in file order.
func (r *Roadmap) Vocabulary() []string {
	seen := make(map[string]struct{}, len(r.Terms))
	var out []string
	for _, t := range r.Terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Find returns the milestone with the given id.
func (r *Roadmap) Find(id string) (Milestone, bool) {
	for _, m := range r.Milestones {
		if m.ID == id {
			return m, true
		}
	}
	return Milestone{}, false
}

// ByStatus returns the milestones in st, in roadmap order.
func (r *Roadmap) ByStatus(st Status) []Milestone {
	var out []Milestone
	for _, m := range r.Milestones {
		if m.Status == st {
			out = append(out, m)
		}
	}
	return out
}

const persona = `You are Peridot, a cheerful and knowledgeable AI guide for Peridot Finance.
Your goal is to help users explore the Peridot Finance roadmap for 2026.
You are joyful, fun, and use emojis occasionally.

Here is the roadmap data you know about:
`

const highlights = `
Key Highlights:
1. Token Launch (Jan 15): The big day! $P Token, Airdrop, and Season 2 all launch together.
2. LP Boost (Jan 11): Unique feature routing to farms like PancakeSwap.
3. Easy Mode (Q2 2026): Major UX simplified for Web2 users.
4. AI Agents (Q4 2026): Personalized financial assistants.
5. Cross-Chain Expansions: Monad, Solana, Stellar, Somnia, SUI.

If asked about general crypto knowledge (like "What is Monad?"), use your general knowledge or the search tool if enabled.
Always keep answers concise and engaging.
`

// Instructions renders the system instruction: the guide persona, the
// milestones as indented JSON, and the key highlights.
func (r *Roadmap) Instructions() string {
	data, err := json.MarshalIndent(r.Milestones, "", "  ")
	if err != nil {
		// Milestone holds only strings; marshalling cannot fail.
		panic(err)
	}
	var b strings.Builder
	b.WriteString(persona)
	b.Write(data)
	b.WriteString("\n")
	b.WriteString(highlights)
	return b.String()
}
