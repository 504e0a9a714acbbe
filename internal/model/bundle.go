// Package model manages classifier model bundles: a directory holding the
// serialized graph, the label table, optional source checkpoint, and a
// manifest describing the graph's declared inputs and outputs.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// NodeInfo describes a declared graph input or output.
type NodeInfo struct {
	Name       string  `json:"name"`
	DType      string  `json:"dtype"`
	Shape      []int64 `json:"shape"`
	Activation string  `json:"activation,omitempty"`
}

// Manifest is the bundle's manifest.json.
type Manifest struct {
	Name       string     `json:"name"`
	Graph      string     `json:"graph"`
	Labels     string     `json:"labels"`
	Checkpoint string     `json:"checkpoint,omitempty"`
	HeadTensor string     `json:"head_tensor,omitempty"`
	Input      NodeInfo   `json:"input"`
	Outputs    []NodeInfo `json:"outputs"`
}

// Bundle is an opened, validated model bundle.
type Bundle struct {
	Dir      string
	Manifest Manifest
}

// Open reads and validates the bundle manifest at dir/manifest.json.
// File references are resolved relative to dir and must exist.
func Open(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("bundle dir is required")
	}

	manifestPath := filepath.Join(dir, "manifest.json")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read bundle manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode bundle manifest: %w", err)
	}

	if err := validateManifest(m); err != nil {
		return nil, err
	}

	b := &Bundle{Dir: dir, Manifest: m}

	for _, rel := range []string{m.Graph, m.Labels} {
		if _, err := os.Stat(b.Path(rel)); err != nil {
			return nil, fmt.Errorf("bundle file %q: %w", rel, err)
		}
	}

	if m.Checkpoint != "" {
		if _, err := os.Stat(b.Path(m.Checkpoint)); err != nil {
			return nil, fmt.Errorf("bundle checkpoint %q: %w", m.Checkpoint, err)
		}
	}

	return b, nil
}

// Path resolves a manifest-relative file reference.
func (b *Bundle) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(b.Dir, rel)
}

// GraphPath returns the absolute path of the serialized graph.
func (b *Bundle) GraphPath() string {
	return b.Path(b.Manifest.Graph)
}

// LabelsPath returns the absolute path of the label file.
func (b *Bundle) LabelsPath() string {
	return b.Path(b.Manifest.Labels)
}

func validateManifest(m Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("bundle manifest has empty name")
	}

	if m.Graph == "" {
		return fmt.Errorf("bundle manifest %q has empty graph filename", m.Name)
	}

	if m.Labels == "" {
		return fmt.Errorf("bundle manifest %q has empty labels filename", m.Name)
	}

	if m.Input.Name == "" {
		return fmt.Errorf("bundle manifest %q declares no input node", m.Name)
	}

	if len(m.Outputs) == 0 {
		return fmt.Errorf("bundle manifest %q declares no outputs", m.Name)
	}

	seen := make(map[string]bool, len(m.Outputs))
	for i, out := range m.Outputs {
		if out.Name == "" {
			return fmt.Errorf("bundle manifest %q output %d has empty name", m.Name, i)
		}
		if seen[out.Name] {
			return fmt.Errorf("bundle manifest %q has duplicate output %q", m.Name, out.Name)
		}
		seen[out.Name] = true
	}

	return nil
}
