package metadata

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed types.yaml
var defaultCatalog []byte

type typeCatalog struct {
	Types []*Type `yaml:"types"`
}

// LoadTypes decodes a YAML type catalog and builds a registry from it.
func LoadTypes(r io.Reader) (*TypeRegistry, error) {
	types, err := decodeTypes(r)
	if err != nil {
		return nil, err
	}
	return NewTypeRegistry(types)
}

func decodeTypes(r io.Reader) ([]*Type, error) {
	var cat typeCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode type catalog: %w", err)
	}
	if len(cat.Types) == 0 {
		return nil, fmt.Errorf("type catalog is empty")
	}
	return cat.Types, nil
}

// ReloadFile replaces the registry's catalog with the one at path. On error
// the current catalog is kept.
func (r *TypeRegistry) ReloadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open type catalog: %w", err)
	}
	defer f.Close()
	types, err := decodeTypes(f)
	if err != nil {
		return err
	}
	return r.Load(types)
}

// LoadTypesFile reads a catalog from path.
func LoadTypesFile(path string) (*TypeRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open type catalog: %w", err)
	}
	defer f.Close()
	return LoadTypes(f)
}

// DefaultTypes returns a registry over the built-in catalog.
func DefaultTypes() *TypeRegistry {
	var cat typeCatalog
	if err := yaml.Unmarshal(defaultCatalog, &cat); err != nil {
		panic(fmt.Sprintf("built-in type catalog: %v", err))
	}
	reg, err := NewTypeRegistry(cat.Types)
	if err != nil {
		panic(fmt.Sprintf("built-in type catalog: %v", err))
	}
	return reg
}
