package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"resourcegraph/internal/naming"
)

// Document is the top level of a model definition file.
type Document struct {
	Naming naming.Config `yaml:"naming"`
	Models []ModelDef    `yaml:"models"`
}

// ModelDef declares one model.
type ModelDef struct {
	Name       string        `yaml:"name"`
	Table      string        `yaml:"table"`
	Collection string        `yaml:"collection"`
	PrimaryKey KeyList       `yaml:"primary_key"`
	Fields     []FieldDef    `yaml:"fields"`
	Relations  []RelationDef `yaml:"relations"`
}

// FieldDef declares one field. Type is a semantic type name or a SQL type.
type FieldDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Column   string `yaml:"column"`
	Nullable bool   `yaml:"nullable"`
}

// RelationDef declares one relation. Keys left empty are derived from the
// relation kind and the primary keys involved.
type RelationDef struct {
	Name             string `yaml:"name"`
	Kind             string `yaml:"kind"`
	Target           string `yaml:"target"`
	LocalKey         string `yaml:"local_key"`
	RemoteKey        string `yaml:"remote_key"`
	Through          string `yaml:"through"`
	ThroughLocalKey  string `yaml:"through_local_key"`
	ThroughRemoteKey string `yaml:"through_remote_key"`
	Loading          string `yaml:"loading"`
}

// KeyList accepts either a single key or a list of keys.
type KeyList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *KeyList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*k = KeyList{value.Value}
		return nil
	case yaml.SequenceNode:
		var keys []string
		if err := value.Decode(&keys); err != nil {
			return err
		}
		*k = keys
		return nil
	}
	return fmt.Errorf("line %d: primary_key must be a string or a list of strings", value.Line)
}

// Parse decodes a model definition document. Unknown keys are rejected.
func Parse(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("parse model definitions: %w", err)
	}
	return doc, nil
}

// Load reads model definitions from a YAML file, or from every *.yaml/*.yml
// file in a directory (in lexical order), and builds the registry.
func Load(path string) (*Registry, error) {
	return LoadWithNaming(path, naming.DefaultConfig())
}

// LoadWithNaming is Load with base naming overrides. Overrides declared in the
// definition files take precedence over base.
func LoadWithNaming(path string, base naming.Config) (*Registry, error) {
	files, err := definitionFiles(path)
	if err != nil {
		return nil, err
	}

	cfg := naming.DefaultConfig()
	for k, v := range base.PluralOverrides {
		cfg.PluralOverrides[k] = v
	}
	for k, v := range base.SingularOverrides {
		cfg.SingularOverrides[k] = v
	}
	var defs []ModelDef
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for k, v := range doc.Naming.PluralOverrides {
			cfg.PluralOverrides[k] = v
		}
		for k, v := range doc.Naming.SingularOverrides {
			cfg.SingularOverrides[k] = v
		}
		defs = append(defs, doc.Models...)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no models defined in %s", path)
	}
	return Build(defs, naming.New(cfg))
}

func definitionFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model definitions: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, errors.New("no *.yaml model definitions in " + path)
	}
	sort.Strings(files)
	return files, nil
}
