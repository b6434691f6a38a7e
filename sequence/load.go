package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlStep is the on-disk representation of a Step. Delay is a Go
// duration string ("48h", "30m") so campaign files stay readable.
type yamlStep struct {
	ID           string `yaml:"id"`
	Subject      string `yaml:"subject"`
	HTML         string `yaml:"html"`
	Text         string `yaml:"text"`
	Delay        string `yaml:"delay"`
	Label        string `yaml:"label,omitempty"`
	CallToAction string `yaml:"call_to_action,omitempty"`
}

type yamlDefinition struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description,omitempty"`
	Steps       []yamlStep `yaml:"steps"`
}

func parseDefinition(data []byte) (*Definition, error) {
	var doc yamlDefinition
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal sequence: %w", err)
	}

	def := &Definition{
		ID:          doc.ID,
		Description: doc.Description,
		Steps:       make([]Step, 0, len(doc.Steps)),
	}
	for i, ys := range doc.Steps {
		delay := time.Duration(0)
		if ys.Delay != "" {
			parsed, err := time.ParseDuration(ys.Delay)
			if err != nil {
				return nil, fmt.Errorf("sequence %q step %d: invalid delay %q: %w", doc.ID, i+1, ys.Delay, err)
			}
			delay = parsed
		}
		def.Steps = append(def.Steps, Step{
			ID:           ys.ID,
			Subject:      ys.Subject,
			HTML:         ys.HTML,
			Text:         ys.Text,
			Delay:        delay,
			Label:        ys.Label,
			CallToAction: ys.CallToAction,
		})
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadFile reads a single sequence definition from disk.
func LoadFile(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sequence path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence %s: %w", path, err)
	}

	def, err := parseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("parse sequence %s: %w", path, err)
	}
	def.Source = path
	return def, nil
}

// LoadDir loads every .yaml/.yml sequence from a directory. A missing
// directory is not an error; operators may simply not have custom
// sequences.
func LoadDir(dir string) ([]*Definition, error) {
	if strings.TrimSpace(dir) == "" {
		return []*Definition{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Definition{}, nil
		}
		return nil, fmt.Errorf("read sequences dir %s: %w", dir, err)
	}

	defs := make([]*Definition, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].ID < defs[j].ID
	})
	return defs, nil
}
