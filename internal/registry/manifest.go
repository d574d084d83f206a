package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Manifest is the schema parser's output: for every braid function, the
// ordered parameter list plus the @policy annotation found in the tool
// definition file. The annotation is cross-checked against the registry
// and mismatches are logged, never fatal.
type Manifest struct {
	Functions map[string]ManifestFunction `yaml:"functions"`
}

// ManifestFunction describes one parsed function.
type ManifestFunction struct {
	File   string   `yaml:"file"`
	Policy string   `yaml:"policy"`
	Params []string `yaml:"params"`
}

// LoadManifest ingests the parser output at path into the registry's
// parameter-order table.
func (r *Registry) LoadManifest(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var m Manifest
	if err := yaml.NewDecoder(f).Decode(&m); err != nil {
		return fmt.Errorf("decode manifest %s: %w", path, err)
	}
	r.ApplyManifest(&m)
	return nil
}

// ApplyManifest installs parameter orders and cross-validates policy
// annotations for every function the manifest knows.
func (r *Registry) ApplyManifest(m *Manifest) {
	byFunction := make(map[string]*Tool, len(r.tools))
	for _, t := range r.tools {
		byFunction[t.FunctionName] = t
	}

	for fn, def := range m.Functions {
		r.SetParamOrder(fn, def.Params)

		tool, known := byFunction[fn]
		if !known {
			r.logger.Warn("manifest names a function the registry does not expose", "function", fn, "file", def.File)
			continue
		}
		if def.Policy != "" && def.Policy != tool.Policy {
			r.logger.Warn("policy annotation disagrees with registry",
				"function", fn, "annotation", def.Policy, "registry", tool.Policy)
		}
	}
	r.logger.Info("manifest applied", "functions", len(m.Functions))
}
