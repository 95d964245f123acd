package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrInvalidSettingValue is returned when a setting value fails its template rule.
var ErrInvalidSettingValue = errors.New("invalid setting value")

// Type is an immutable catalog entry describing a field type.
type Type struct {
	ClassName   string           `json:"class_name" yaml:"class_name"`
	DisplayName string           `json:"display_name" yaml:"display_name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	StorageKind string           `json:"storage_kind" yaml:"storage_kind"`
	Settings    []TypeSetting    `json:"settings,omitempty" yaml:"settings"`
	Validations []TypeValidation `json:"validations,omitempty" yaml:"validations"`
}

// TypeSetting is a setting template. Rule is an optional boolean expression
// over `value`.
type TypeSetting struct {
	Name         string `json:"name" yaml:"name"`
	ValueType    string `json:"value_type" yaml:"value_type"`
	DefaultValue string `json:"default_value" yaml:"default_value"`
	Rule         string `json:"rule,omitempty" yaml:"rule"`

	program *vm.Program
}

// TypeValidation is a validation template.
type TypeValidation struct {
	Name         string `json:"name" yaml:"name"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	ValueType    string `json:"value_type" yaml:"value_type"`
	DefaultValue string `json:"default_value" yaml:"default_value"`
}

// Setting returns the setting template with the given name, or nil.
func (t *Type) Setting(name string) *TypeSetting {
	for i := range t.Settings {
		if t.Settings[i].Name == name {
			return &t.Settings[i]
		}
	}
	return nil
}

// Check converts value to the template's value type and evaluates its rule.
// An empty value is accepted and means "unset".
func (s *TypeSetting) Check(value string) error {
	if value == "" {
		return nil
	}
	v, err := typedValue(s.ValueType, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettingValue, s.Name, err)
	}
	if s.program == nil {
		return nil
	}
	result, err := expr.Run(s.program, map[string]any{"value": v})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettingValue, s.Name, err)
	}
	if ok, _ := result.(bool); !ok {
		return fmt.Errorf("%w: %s=%s violates %s", ErrInvalidSettingValue, s.Name, value, s.Rule)
	}
	return nil
}

func typedValue(valueType, value string) (any, error) {
	switch valueType {
	case "integer":
		return strconv.Atoi(value)
	case "decimal":
		return strconv.ParseFloat(value, 64)
	case "boolean":
		return strconv.ParseBool(value)
	default:
		return value, nil
	}
}

func sampleValue(valueType string) any {
	switch valueType {
	case "integer":
		return 0
	case "decimal":
		return 0.0
	case "boolean":
		return false
	default:
		return ""
	}
}

// TypeRegistry resolves field types by class name. It is safe for concurrent use.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewTypeRegistry validates the catalog and compiles every setting rule.
func NewTypeRegistry(types []*Type) (*TypeRegistry, error) {
	r := &TypeRegistry{}
	if err := r.Load(types); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the catalog.
func (r *TypeRegistry) Load(types []*Type) error {
	m := make(map[string]*Type, len(types))
	for _, t := range types {
		if t.ClassName == "" {
			return fmt.Errorf("type without class_name")
		}
		if _, dup := m[t.ClassName]; dup {
			return fmt.Errorf("duplicate type %s", t.ClassName)
		}
		for i := range t.Settings {
			s := &t.Settings[i]
			if s.Rule == "" {
				continue
			}
			env := map[string]any{"value": sampleValue(s.ValueType)}
			prog, err := expr.Compile(s.Rule, expr.Env(env), expr.AsBool())
			if err != nil {
				return fmt.Errorf("type %s setting %s: compile rule: %w", t.ClassName, s.Name, err)
			}
			s.program = prog
		}
		m[t.ClassName] = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = m
	return nil
}

// Resolve returns the type with the given class name.
func (r *TypeRegistry) Resolve(className string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[className]
	return t, ok
}

// All returns every registered type, ordered by class name.
func (r *TypeRegistry) All() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ClassName < types[j].ClassName })
	return types
}
