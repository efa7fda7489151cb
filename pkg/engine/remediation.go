package engine

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// RemediationTemplate describes how to fix a failing control.
type RemediationTemplate struct {
	Control           string   `yaml:"control"`
	Name              string   `yaml:"name"`
	Issue             string   `yaml:"issue"`
	Risk              string   `yaml:"risk"`
	Standard          string   `yaml:"standard"`
	Description       string   `yaml:"description"`
	FixCommand        string   `yaml:"fix_command"`
	ValidationCommand string   `yaml:"validation_command"`
	RollbackCommand   string   `yaml:"rollback_command"`
	Variables         []string `yaml:"variables"`
}

// RemediationEngine manages remediation templates keyed by control id.
type RemediationEngine struct {
	Templates map[string]RemediationTemplate
}

// NewRemediationEngine creates an empty remediation engine.
func NewRemediationEngine() *RemediationEngine {
	return &RemediationEngine{
		Templates: make(map[string]RemediationTemplate),
	}
}

// LoadTemplates reads every YAML template at the root of fsys.
func (e *RemediationEngine) LoadTemplates(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}

	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return err
		}

		var t RemediationTemplate
		if err := yaml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		if t.Control == "" {
			return fmt.Errorf("template %s has no control id", entry.Name())
		}
		e.Templates[t.Control] = t
	}
	return nil
}

// ListTemplates returns "control: name" lines sorted by control id.
func (e *RemediationEngine) ListTemplates() []string {
	list := make([]string, 0, len(e.Templates))
	for _, t := range e.Templates {
		list = append(list, fmt.Sprintf("%s: %s", t.Control, t.Name))
	}
	sort.Strings(list)
	return list
}

// Has reports whether a template exists for the control.
func (e *RemediationEngine) Has(controlID string) bool {
	_, ok := e.Templates[controlID]
	return ok
}

// GeneratePlan renders the fix plan for a control with the given variables.
func (e *RemediationEngine) GeneratePlan(controlID string, vars map[string]string) (string, error) {
	tmpl, ok := e.Templates[controlID]
	if !ok {
		return "", fmt.Errorf("no remediation template for control %s", controlID)
	}

	for _, requiredVar := range tmpl.Variables {
		if _, exists := vars[requiredVar]; !exists {
			return "", fmt.Errorf("missing required variable: %s", requiredVar)
		}
	}

	fixCmd, err := renderString("fix", tmpl.FixCommand, vars)
	if err != nil {
		return "", err
	}
	validateCmd, err := renderString("validate", tmpl.ValidationCommand, vars)
	if err != nil {
		return "", err
	}
	rollbackCmd, err := renderString("rollback", tmpl.RollbackCommand, vars)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("[FIX PLAN]\n")
	sb.WriteString(fmt.Sprintf("Control: %s\n", tmpl.Control))
	sb.WriteString(fmt.Sprintf("Issue: %s\n", tmpl.Issue))
	sb.WriteString(fmt.Sprintf("Risk: %s\n", tmpl.Risk))
	sb.WriteString(fmt.Sprintf("Standard: %s\n\n", tmpl.Standard))

	sb.WriteString("Suggested Fix:\n")
	sb.WriteString(fixCmd + "\n\n")

	sb.WriteString("Validation:\n")
	sb.WriteString(validateCmd + "\n\n")

	sb.WriteString("Rollback:\n")
	sb.WriteString(rollbackCmd + "\n")

	return sb.String(), nil
}

func renderString(name, tmplStr string, vars map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
