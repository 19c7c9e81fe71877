package recurrence

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/courtboard/internal/court"
)

// ErrUnknownTemplate indicates a catalog reference to a missing template.
var ErrUnknownTemplate = errors.New("recurrence: unknown template")

// Catalog holds named block templates and recurrence rules loaded from YAML.
type Catalog struct {
	Templates   []court.BlockTemplate
	Recurrences []court.RecurrenceRule
}

type catalogFile struct {
	Templates   []court.BlockTemplate `yaml:"templates"`
	Recurrences []struct {
		ID         string               `yaml:"id"`
		Pattern    court.Pattern        `yaml:"pattern"`
		Frequency  int                  `yaml:"frequency"`
		TemplateID string               `yaml:"templateId"`
		Template   *court.BlockTemplate `yaml:"template"`
	} `yaml:"recurrences"`
}

// LoadCatalog reads a catalog file. An empty path yields an empty catalog.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("recurrence: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML and resolves templateId references.
func ParseCatalog(data []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, fmt.Errorf("recurrence: parse catalog: %w", err)
	}

	catalog := Catalog{Templates: file.Templates}
	for _, tpl := range catalog.Templates {
		if strings.TrimSpace(tpl.ID) == "" {
			return Catalog{}, fmt.Errorf("%w: catalog template %q has no id", ErrInvalidTemplate, tpl.Name)
		}
		if err := ValidateTemplate(tpl); err != nil {
			return Catalog{}, fmt.Errorf("template %s: %w", tpl.ID, err)
		}
	}

	for _, raw := range file.Recurrences {
		rule := court.RecurrenceRule{ID: raw.ID, Pattern: raw.Pattern, Frequency: raw.Frequency, Template: raw.Template}
		if rule.Frequency == 0 {
			rule.Frequency = 1
		}
		if rule.Template == nil && raw.TemplateID != "" {
			tpl, ok := catalog.Template(raw.TemplateID)
			if !ok {
				return Catalog{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, raw.TemplateID)
			}
			rule.Template = &tpl
		}
		if err := ValidateRule(rule); err != nil {
			return Catalog{}, fmt.Errorf("recurrence %s: %w", rule.ID, err)
		}
		catalog.Recurrences = append(catalog.Recurrences, rule)
	}
	return catalog, nil
}

// Template looks up a template by id.
func (c Catalog) Template(id string) (court.BlockTemplate, bool) {
	for _, tpl := range c.Templates {
		if tpl.ID == id {
			tpl.Courts = append([]int(nil), tpl.Courts...)
			return tpl, true
		}
	}
	return court.BlockTemplate{}, false
}

// Recurrence looks up a recurrence rule by id.
func (c Catalog) Recurrence(id string) (court.RecurrenceRule, bool) {
	for _, rule := range c.Recurrences {
		if rule.ID == id {
			return rule, true
		}
	}
	return court.RecurrenceRule{}, false
}
