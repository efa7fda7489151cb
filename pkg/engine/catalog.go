package engine

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is one catalog file: a titled group of controls for a standard.
type Profile struct {
	Standard    string    `yaml:"standard"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Controls    []Control `yaml:"controls"`
}

// DecodeProfile parses a single YAML catalog document.
func DecodeProfile(data []byte) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadCatalogFS reads every .yaml/.yml file at the root of fsys, in lexical
// order, and loads their controls into one registry.
func LoadCatalogFS(fsys fs.FS) (*Registry, []Profile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, nil, err
	}
	var names []string
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("no .yaml or .yml catalog files found")
	}
	return loadProfiles(fsys, names)
}

func loadProfiles(fsys fs.FS, names []string) (*Registry, []Profile, error) {
	reg := &Registry{index: make(map[string]int)}
	var profiles []Profile
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, nil, err
		}
		p, err := DecodeProfile(data)
		if err != nil {
			return nil, nil, &DefinitionError{Source: name, Reason: err.Error()}
		}
		for _, c := range p.Controls {
			if err := reg.add(c, name); err != nil {
				return nil, nil, err
			}
		}
		profiles = append(profiles, p)
	}
	return reg, profiles, nil
}

// LoadCatalog loads a catalog from a YAML file or a directory of YAML files.
// A file named explicitly is loaded whatever its extension.
func LoadCatalog(p string) (*Registry, []Profile, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog %q: %w", p, err)
	}
	if info.IsDir() {
		return LoadCatalogFS(os.DirFS(p))
	}
	return loadProfiles(os.DirFS(filepath.Dir(p)), []string{filepath.Base(p)})
}
