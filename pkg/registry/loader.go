package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/visibility"
	visibilitycel "github.com/goliatone/go-formengine/pkg/visibility/cel"
	visibilityexpr "github.com/goliatone/go-formengine/pkg/visibility/expr"
)

const documentSchemaURL = "https://formengine.local/registry.schema.json"

//go:embed registry.schema.json
var documentSchemaJSON []byte

var (
	documentSchemaOnce sync.Once
	documentSchema     *jsonschema.Schema
	documentSchemaErr  error
)

type documentFile struct {
	Kind       string          `yaml:"kind"`
	Predicates string          `yaml:"predicates"`
	Fields     []fieldFile     `yaml:"fields"`
	Validation *validationFile `yaml:"validation"`
}

type fieldFile struct {
	Key         string              `yaml:"key"`
	Type        string              `yaml:"type"`
	Label       string              `yaml:"label"`
	Group       string              `yaml:"group"`
	Default     any                 `yaml:"default"`
	Parent      string              `yaml:"parent"`
	When        string              `yaml:"when"`
	ResetsGroup string              `yaml:"resetsGroup"`
	Options     []string            `yaml:"options"`
	OptionsBy   map[string][]string `yaml:"optionsBy"`
	Derive      *model.DerivedSpec  `yaml:"derive"`
	Metadata    map[string]string   `yaml:"metadata"`
}

type validationFile struct {
	Rules    map[string][]model.ValidationRule `yaml:"rules"`
	Branches []branchFile                      `yaml:"branches"`
}

type branchFile struct {
	Discriminator string                            `yaml:"discriminator"`
	Value         string                            `yaml:"value"`
	Rules         map[string][]model.ValidationRule `yaml:"rules"`
}

// LoadFS walks fsys and builds one schema per YAML/JSON registry document.
// Every document is checked against the embedded registry JSON Schema, then
// structurally (model.NewSchema) and finally every gating rule is compiled.
// Any failure is returned as a *model.ConfigurationError.
func LoadFS(fsys fs.FS) (*Registry, error) {
	reg := &Registry{schemas: make(map[model.FormKind]*model.Schema)}
	if fsys == nil {
		return reg, nil
	}

	checkers, err := newCheckers()
	if err != nil {
		return nil, err
	}

	err = fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDocumentFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("registry: read %s: %w", path, err)
		}
		schema, err := parseDocument(data, path, checkers)
		if err != nil {
			return err
		}
		if _, exists := reg.schemas[schema.Kind()]; exists {
			return &model.ConfigurationError{Kind: schema.Kind(), Reason: fmt.Sprintf("duplicate form kind (file %s)", path)}
		}
		reg.schemas[schema.Kind()] = schema
		reg.order = append(reg.order, schema.Kind())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func parseDocument(data []byte, source string, checkers map[model.PredicateLanguage]visibility.Checker) (*model.Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("registry file %s is empty", source)}
	}
	if err := validateDocument(data); err != nil {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("registry file %s does not match the document schema", source), Err: err}
	}

	var doc documentFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("parse %s", source), Err: err}
	}

	kind := model.FormKind(strings.TrimSpace(doc.Kind))
	fields := make([]model.FieldSpec, 0, len(doc.Fields))
	for _, raw := range doc.Fields {
		fields = append(fields, model.FieldSpec{
			Key:         raw.Key,
			Type:        model.FieldType(raw.Type),
			Label:       raw.Label,
			Group:       raw.Group,
			Default:     raw.Default,
			Parent:      raw.Parent,
			When:        raw.When,
			ResetsGroup: raw.ResetsGroup,
			Options:     raw.Options,
			OptionsBy:   raw.OptionsBy,
			Derive:      raw.Derive,
			Metadata:    raw.Metadata,
		})
	}

	var validation model.ValidationSpec
	if doc.Validation != nil {
		validation.Rules = doc.Validation.Rules
		for _, branch := range doc.Validation.Branches {
			validation.Branches = append(validation.Branches, model.ValidationBranch{
				Discriminator: branch.Discriminator,
				Value:         branch.Value,
				Rules:         branch.Rules,
			})
		}
	}

	schema, err := model.NewSchema(kind, model.PredicateLanguage(doc.Predicates), fields, validation)
	if err != nil {
		return nil, err
	}
	if err := checkPredicates(schema, checkers); err != nil {
		return nil, err
	}
	return schema, nil
}

func checkPredicates(schema *model.Schema, checkers map[model.PredicateLanguage]visibility.Checker) error {
	checker := checkers[schema.Predicates()]
	for _, field := range schema.Fields() {
		if !field.Gated() {
			continue
		}
		if err := checker.Check(field.When); err != nil {
			return &model.ConfigurationError{Kind: schema.Kind(), Key: field.Key, Reason: "invalid gating rule", Err: err}
		}
		if schema.Predicates() != model.PredicateExpr {
			continue
		}
		prog, err := visibilityexpr.Compile(field.When)
		if err != nil {
			return &model.ConfigurationError{Kind: schema.Kind(), Key: field.Key, Reason: "invalid gating rule", Err: err}
		}
		referencesParent := false
		for _, ident := range prog.Identifiers() {
			if _, ok := schema.Field(ident); !ok {
				return &model.ConfigurationError{Kind: schema.Kind(), Key: field.Key, Reason: fmt.Sprintf("gating rule references unknown field %q", ident)}
			}
			if ident == field.Parent {
				referencesParent = true
			}
		}
		if !referencesParent {
			return &model.ConfigurationError{Kind: schema.Kind(), Key: field.Key, Reason: fmt.Sprintf("gating rule must reference parent %q", field.Parent)}
		}
	}
	return nil
}

func newCheckers() (map[model.PredicateLanguage]visibility.Checker, error) {
	celEval, err := visibilitycel.New()
	if err != nil {
		return nil, &model.ConfigurationError{Reason: "cel environment", Err: err}
	}
	return map[model.PredicateLanguage]visibility.Checker{
		model.PredicateExpr: visibilityexpr.New(),
		model.PredicateCEL:  celEval,
	}, nil
}

// validateDocument checks the raw document against registry.schema.json.
// YAML is round-tripped through JSON so the validator sees JSON types.
func validateDocument(data []byte) error {
	documentSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(documentSchemaURL, bytes.NewReader(documentSchemaJSON)); err != nil {
			documentSchemaErr = fmt.Errorf("registry: load document schema: %w", err)
			return
		}
		documentSchema, documentSchemaErr = c.Compile(documentSchemaURL)
	})
	if documentSchemaErr != nil {
		return documentSchemaErr
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return documentSchema.Validate(doc)
}

func isDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
