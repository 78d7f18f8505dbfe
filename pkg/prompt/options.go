package prompt

import (
	"log/slog"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

// FileLoader turns a path typed by the user into an attachment.
type FileLoader func(path string) (*model.FileRef, error)

// Theme captures optional message prefixes.
type Theme struct {
	InfoPrefix  string
	ErrorPrefix string
}

// Option configures a Filler.
type Option func(*Filler)

// WithDriver overrides the survey driver.
func WithDriver(driver Driver) Option {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithWidgets overrides the widget registry.
func WithWidgets(reg *widgets.Registry) Option {
	return func(f *Filler) {
		if reg != nil {
			f.widgets = reg
		}
	}
}

// WithFileLoader overrides how attachment paths are read.
func WithFileLoader(loader FileLoader) Option {
	return func(f *Filler) {
		if loader != nil {
			f.loadFile = loader
		}
	}
}

// WithTheme applies message prefixes.
func WithTheme(theme Theme) Option {
	return func(f *Filler) {
		f.theme = theme
	}
}

// WithLogger sets the filler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filler) {
		if logger != nil {
			f.logger = logger
		}
	}
}
