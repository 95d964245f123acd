package metadata

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultTypes_ResolvesBuiltins(t *testing.T) {
	reg := DefaultTypes()
	for _, name := range []string{"integer", "long", "decimal", "string", "boolean", "date", "datetime", "time", "list"} {
		if _, ok := reg.Resolve(name); !ok {
			t.Fatalf("expected built-in type %s", name)
		}
	}
	if _, ok := reg.Resolve("java.lang.Object"); ok {
		t.Fatal("expected unknown type to be absent")
	}
	all := reg.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ClassName > all[i].ClassName {
			t.Fatalf("expected sorted types, got %s before %s", all[i-1].ClassName, all[i].ClassName)
		}
	}
}

func TestTypeSettingCheck(t *testing.T) {
	reg := DefaultTypes()
	str, _ := reg.Resolve("string")
	max := str.Setting("maxTextLength")
	if max == nil {
		t.Fatal("expected maxTextLength setting")
	}

	tests := []struct {
		value   string
		wantErr bool
	}{
		{"255", false},
		{"1", false},
		{"", false},
		{"0", true},
		{"-3", true},
		{"abc", true},
	}
	for _, tt := range tests {
		err := max.Check(tt.value)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSettingValue) {
				t.Fatalf("value %q: expected ErrInvalidSettingValue, got %v", tt.value, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("value %q: unexpected error %v", tt.value, err)
		}
	}
}

func TestLoadTypes_CustomCatalog(t *testing.T) {
	src := `
types:
  - class_name: money
    display_name: Money
    storage_kind: decimal
    settings:
      - name: currency
        value_type: string
        default_value: EUR
        rule: len(value) == 3
`
	reg, err := LoadTypes(strings.NewReader(src))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	money, ok := reg.Resolve("money")
	if !ok {
		t.Fatal("expected money type")
	}
	if err := money.Setting("currency").Check("USD"); err != nil {
		t.Fatalf("USD: %v", err)
	}
	if err := money.Setting("currency").Check("DOLLAR"); err == nil {
		t.Fatal("expected rule violation")
	}
}

func TestLoadTypes_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":     "types: []\n",
		"unknown":   "types:\n  - class_name: a\n    colour: red\n",
		"duplicate": "types:\n  - class_name: a\n  - class_name: a\n",
		"bad rule":  "types:\n  - class_name: a\n    settings:\n      - name: s\n        value_type: integer\n        rule: value +\n",
		"non-bool":  "types:\n  - class_name: a\n    settings:\n      - name: s\n        value_type: integer\n        rule: value + 1\n",
	}
	for name, src := range tests {
		if _, err := LoadTypes(strings.NewReader(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNewField_FillsTemplates(t *testing.T) {
	str, _ := DefaultTypes().Resolve("string")
	f := NewField(str, "Title", "title")
	if len(f.Settings) != len(str.Settings) {
		t.Fatalf("expected %d settings, got %d", len(str.Settings), len(f.Settings))
	}
	if f.Setting("maxTextLength").Value != "255" {
		t.Fatalf("expected template default, got %s", f.Setting("maxTextLength").Value)
	}
	if len(f.Validations) != len(str.Validations) {
		t.Fatalf("expected %d validations, got %d", len(str.Validations), len(f.Validations))
	}
	for _, v := range f.Validations {
		if v.Enabled {
			t.Fatalf("expected validation %s disabled", v.Name)
		}
	}
}
