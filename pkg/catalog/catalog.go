// Package catalog ships the default control definitions and remediation
// templates embedded in the binary.
package catalog

import (
	"embed"
	"io/fs"
	"os"

	"github.com/user/cisaudit/pkg/engine"
)

//go:embed controls/*.yaml
var controlsFS embed.FS

//go:embed remediation/*.yaml
var remediationFS embed.FS

// Controls returns the embedded control definitions.
func Controls() fs.FS {
	sub, err := fs.Sub(controlsFS, "controls")
	if err != nil {
		panic(err)
	}
	return sub
}

// Remediation returns the embedded remediation templates.
func Remediation() fs.FS {
	sub, err := fs.Sub(remediationFS, "remediation")
	if err != nil {
		panic(err)
	}
	return sub
}

// Load returns the registry at path, or the embedded catalog when path is empty.
func Load(path string) (*engine.Registry, []engine.Profile, error) {
	if path == "" {
		return engine.LoadCatalogFS(Controls())
	}
	return engine.LoadCatalog(path)
}

// LoadRemediation builds a remediation engine from the embedded templates,
// overlaid by the templates in dir when dir is set.
func LoadRemediation(dir string) (*engine.RemediationEngine, error) {
	re := engine.NewRemediationEngine()
	if err := re.LoadTemplates(Remediation()); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := re.LoadTemplates(os.DirFS(dir)); err != nil {
			return nil, err
		}
	}
	return re, nil
}
