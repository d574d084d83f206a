// braid-check is the pre-flight diagnostic for a braid engine install.
// It loads the same tables the server loads and fails loudly on the
// misalignments the runtime only warns about: tools without policies,
// functions without parameter orders, chain steps naming unknown tools,
// cycles in the dependency graph.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/braidhq/engine/internal/chain"
	"github.com/braidhq/engine/internal/config"
	"github.com/braidhq/engine/internal/graph"
	"github.com/braidhq/engine/internal/policy"
	"github.com/braidhq/engine/internal/registry"
)

// Check is one diagnostic. Detail prints on success, the error on
// failure.
type Check struct {
	Name string
	Run  func() (detail string, err error)
}

func main() {
	configPath := flag.String("config", "", "engine config yaml; empty means defaults plus environment")
	manifestPath := flag.String("manifest", "configs/braid-manifest.yaml", "schema parser manifest yaml")
	flag.Parse()

	// The registry logs its own warnings; the table below reports
	// everything, so keep the logger quiet.
	reg := registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	chainDefs := chain.NewRegistry(chain.Builtins()...)

	checks := []Check{
		{"Configuration", checkConfig(*configPath)},
		{"Policy table", checkPolicies(reg)},
		{"Tool manifest", checkManifest(reg, *manifestPath)},
		{"Registry integrity", checkRegistry(reg)},
		{"Chain definitions", checkChains(reg, chainDefs)},
		{"Dependency graph", checkGraph(reg, chainDefs)},
	}

	fmt.Println("\033[96mBraid Engine - Pre-Flight Check\033[0m")
	fmt.Println("--------------------------------------------------------")

	failed := 0
	for _, c := range checks {
		fmt.Printf("Checking %-22s ", c.Name+"...")
		detail, err := c.Run()
		if err != nil {
			failed++
			fmt.Println("\033[31m[FAIL]\033[0m")
			fmt.Printf("  >> %v\n", err)
			continue
		}
		fmt.Println("\033[32m[OK]\033[0m")
		if detail != "" {
			fmt.Printf("  %s\n", detail)
		}
	}

	fmt.Println("--------------------------------------------------------")
	if failed > 0 {
		fmt.Printf("\033[31m%d of %d checks failed.\033[0m\n", failed, len(checks))
		os.Exit(1)
	}
	fmt.Println("\033[96mAll checks passed. Engine is ready.\033[0m")
}

func checkConfig(path string) func() (string, error) {
	return func() (string, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return "", err
		}
		if problems := cfg.Validate(); len(problems) > 0 {
			return "", fmt.Errorf("%s", strings.Join(problems, "; "))
		}
		return fmt.Sprintf("cache=%s events=%s audit=%s", cfg.Cache.Backend, cfg.Events.Backend, cfg.Audit.Backend), nil
	}
}

// checkPolicies verifies the tool table and the policy table agree in
// both directions: no tool names a policy that does not exist, and no
// policy sits in the table unreferenced.
func checkPolicies(reg *registry.Registry) func() (string, error) {
	return func() (string, error) {
		referenced := make(map[string]int)
		for _, t := range reg.List() {
			if _, ok := policy.Lookup(t.Policy); !ok {
				return "", fmt.Errorf("tool %s references unknown policy %q", t.Name, t.Policy)
			}
			referenced[t.Policy]++
		}
		names := policy.Names()
		sort.Strings(names)
		for _, name := range names {
			if referenced[name] == 0 {
				return "", fmt.Errorf("policy %q is not referenced by any tool", name)
			}
		}
		return fmt.Sprintf("%d policies cover %d tools", len(names), reg.Count()), nil
	}
}

// checkManifest parses the schema parser output and cross-checks it
// against the registry before installing the parameter orders. The
// runtime tolerates a missing or misaligned manifest; pre-flight does
// not.
func checkManifest(reg *registry.Registry, path string) func() (string, error) {
	return func() (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()

		var m registry.Manifest
		if err := yaml.NewDecoder(f).Decode(&m); err != nil {
			return "", fmt.Errorf("decode %s: %w", path, err)
		}

		byFunction := make(map[string]string, reg.Count())
		for _, t := range reg.List() {
			byFunction[t.FunctionName] = t.Policy
		}
		for fn, def := range m.Functions {
			want, known := byFunction[fn]
			if !known {
				return "", fmt.Errorf("manifest function %s is not in the registry", fn)
			}
			if def.Policy != "" && def.Policy != want {
				return "", fmt.Errorf("function %s: manifest annotates policy %q, registry says %q", fn, def.Policy, want)
			}
			if len(def.Params) == 0 {
				return "", fmt.Errorf("function %s has an empty parameter list", fn)
			}
		}
		for fn := range byFunction {
			if _, ok := m.Functions[fn]; !ok {
				return "", fmt.Errorf("registry function %s is missing from the manifest", fn)
			}
		}

		reg.ApplyManifest(&m)
		return fmt.Sprintf("%d functions with parameter orders", len(m.Functions)), nil
	}
}

// checkRegistry runs the registry's own validation, which must be
// clean once the manifest is applied.
func checkRegistry(reg *registry.Registry) func() (string, error) {
	return func() (string, error) {
		if warnings := reg.Validate(); len(warnings) > 0 {
			return "", fmt.Errorf("%s", strings.Join(warnings, "; "))
		}
		return fmt.Sprintf("%d tools registered", reg.Count()), nil
	}
}

// checkChains verifies every static chain step and rollback step
// dispatches a registered tool, and that step ids stay unique within
// each chain. Dynamic chains are checked for a generator only; their
// steps exist per invocation.
func checkChains(reg *registry.Registry, defs *chain.Registry) func() (string, error) {
	return func() (string, error) {
		steps := 0
		for _, def := range defs.List() {
			if def.Dynamic {
				if def.GenerateSteps == nil {
					return "", fmt.Errorf("chain %s is dynamic but has no step generator", def.Name)
				}
				continue
			}
			if len(def.Steps) == 0 {
				return "", fmt.Errorf("chain %s has no steps", def.Name)
			}
			seen := make(map[string]bool, len(def.Steps))
			for _, step := range def.Steps {
				if seen[step.ID] {
					return "", fmt.Errorf("chain %s repeats step id %q", def.Name, step.ID)
				}
				seen[step.ID] = true
				if _, ok := reg.Lookup(step.Tool); !ok {
					return "", fmt.Errorf("chain %s step %s dispatches unknown tool %q", def.Name, step.ID, step.Tool)
				}
				steps++
			}
			for _, rb := range def.Rollback {
				if _, ok := reg.Lookup(rb.Tool); !ok {
					return "", fmt.Errorf("chain %s rollback dispatches unknown tool %q", def.Name, rb.Tool)
				}
			}
		}
		return fmt.Sprintf("%d chains, %d static steps resolve", defs.Len(), steps), nil
	}
}

// checkGraph verifies the dependency graph names exactly the tools the
// registry exposes and carries no cycles.
func checkGraph(reg *registry.Registry, defs *chain.Registry) func() (string, error) {
	return func() (string, error) {
		nodes := graph.DefaultNodes()
		byName := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			if _, ok := reg.Lookup(n.Name); !ok {
				return "", fmt.Errorf("graph node %s is not a registered tool", n.Name)
			}
			byName[n.Name] = true
			for _, dep := range n.Dependencies {
				if _, ok := reg.Lookup(dep); !ok {
					return "", fmt.Errorf("graph node %s depends on unknown tool %q", n.Name, dep)
				}
			}
		}
		for _, t := range reg.List() {
			if !byName[t.Name] {
				return "", fmt.Errorf("tool %s has no graph node", t.Name)
			}
		}

		report := graph.New(nodes, defs.List()).DetectCycles()
		if report.HasCircular {
			var cycles []string
			for _, c := range report.Cycles {
				cycles = append(cycles, strings.Join(c, " -> "))
			}
			return "", fmt.Errorf("dependency cycles: %s", strings.Join(cycles, "; "))
		}
		return fmt.Sprintf("%d nodes, acyclic", len(nodes)), nil
	}
}
