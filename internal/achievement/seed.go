package achievement

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Achievements []seedEntry `yaml:"achievements"`
}

type seedEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Target      int    `yaml:"target"`
}

// LoadCatalogFile reads a YAML seed catalog:
//
//	achievements:
//	  - id: boot_master
//	    name: Boot Master
//	    description: Boot 10 times successfully
//	    target: 10
//
// Entries without a name get one derived from the ID.
func LoadCatalogFile(path string) ([]Achievement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML seed catalog document.
func ParseCatalog(data []byte) ([]Achievement, error) {
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed catalog: %w", err)
	}
	if len(doc.Achievements) == 0 {
		return nil, errors.New("parse seed catalog: no achievements defined")
	}
	if len(doc.Achievements) > MaxAchievements {
		return nil, fmt.Errorf("parse seed catalog: %d entries exceeds limit of %d", len(doc.Achievements), MaxAchievements)
	}

	seen := make(map[string]struct{}, len(doc.Achievements))
	out := make([]Achievement, 0, len(doc.Achievements))
	for i, entry := range doc.Achievements {
		id := normalizeID(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("parse seed catalog: entry %d: id is required", i+1)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("parse seed catalog: %q: %w", id, ErrDuplicateID)
		}
		if entry.Target <= 0 {
			return nil, fmt.Errorf("parse seed catalog: %q: target must be positive", id)
		}
		seen[id] = struct{}{}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = DisplayName(id)
		}
		out = append(out, Achievement{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(entry.Description),
			Target:      entry.Target,
		})
	}
	return out, nil
}

// DisplayName turns an ID like "boot_master" into "Boot Master".
func DisplayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}
