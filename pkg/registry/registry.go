// Package registry holds the declarative form definitions. Each form is a
// YAML document under forms/ describing its fields, dependency graph and
// validation branches; documents are checked against registry.schema.json and
// compiled into *model.Schema values at load time.
package registry

import (
	"embed"
	"io/fs"
	"sync"

	"github.com/goliatone/go-formengine/pkg/model"
)

//go:embed forms/*.yaml
var embeddedForms embed.FS

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Registry maps form kinds to their schemas. It is immutable after loading.
type Registry struct {
	schemas map[model.FormKind]*model.Schema
	order   []model.FormKind
}

// Default returns the registry built from the embedded form documents. The
// documents are parsed once; a broken embedded document is reported on every
// call.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embeddedForms, "forms")
		if err != nil {
			defaultErr = &model.ConfigurationError{Reason: "embedded forms", Err: err}
			return
		}
		defaultReg, defaultErr = LoadFS(sub)
	})
	return defaultReg, defaultErr
}

// Schema returns the schema for kind or a *model.ConfigurationError.
func (r *Registry) Schema(kind model.FormKind) (*model.Schema, error) {
	if r == nil {
		return nil, model.UnknownFormKind(kind)
	}
	schema, ok := r.schemas[kind]
	if !ok {
		return nil, model.UnknownFormKind(kind)
	}
	return schema, nil
}

// FieldSpec returns the declaration of key in form kind.
func (r *Registry) FieldSpec(kind model.FormKind, key string) (model.FieldSpec, error) {
	schema, err := r.Schema(kind)
	if err != nil {
		return model.FieldSpec{}, err
	}
	return schema.MustField(key)
}

// Kinds lists the registered form kinds in load order.
func (r *Registry) Kinds() []model.FormKind {
	if r == nil {
		return nil
	}
	return append([]model.FormKind(nil), r.order...)
}
