// Package prompt fills a form session from the terminal. It walks the
// visible fields in schema order, asks for each one with the widget the
// registry picks and feeds the answer back through Session.Set, so fields
// revealed by an answer are asked next and hidden ones are skipped.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/session"
	"github.com/goliatone/go-formengine/pkg/validation"
	"github.com/goliatone/go-formengine/pkg/widgets"
)

const noneOption = "(none)"

// Filler drives a session through a Driver.
type Filler struct {
	driver   Driver
	widgets  *widgets.Registry
	loadFile FileLoader
	theme    Theme
	logger   *slog.Logger
}

// New constructs a filler with the survey driver and built-in widgets.
func New(options ...Option) *Filler {
	f := &Filler{
		widgets:  widgets.NewRegistry(),
		loadFile: LoadFile,
		theme:    Theme{InfoPrefix: "", ErrorPrefix: "! "},
		logger:   slog.Default().WithGroup("prompt"),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(f)
	}
	if f.driver == nil {
		f.driver = NewSurveyDriver()
	}
	return f
}

// Fill asks for every visible editable field once. Fields revealed by an
// answer are asked in turn; a field that becomes hidden before its turn is
// skipped.
func (f *Filler) Fill(ctx context.Context, sess *session.Session) error {
	asked := make(map[string]bool)
	for {
		key, ok := nextField(sess, asked)
		if !ok {
			break
		}
		asked[key] = true
		if err := f.Ask(ctx, sess, key); err != nil {
			return err
		}
	}
	return f.showDerived(ctx, sess)
}

// Fix re-asks every field in errs, reporting its message first.
func (f *Filler) Fix(ctx context.Context, sess *session.Session, errs validation.ErrorMap) error {
	for _, key := range orderedKeys(sess, errs) {
		if !sess.IsVisible(key) {
			continue
		}
		if err := f.driver.Info(ctx, f.theme.ErrorPrefix+errs[key].Message); err != nil {
			return err
		}
		if err := f.Ask(ctx, sess, key); err != nil {
			return err
		}
	}
	return f.showDerived(ctx, sess)
}

// Ask prompts for one field and stores the answer.
func (f *Filler) Ask(ctx context.Context, sess *session.Session, key string) error {
	field, err := sess.Schema().MustField(key)
	if err != nil {
		return err
	}
	if field.IsDerived() {
		return nil
	}
	current, err := sess.Value(key)
	if err != nil {
		return err
	}

	widget, ok := f.widgets.Resolve(field)
	if !ok {
		widget = widgets.WidgetInput
	}
	required := contains(sess.Required(), key)
	label := labelFor(field, required)

	for {
		value, err := f.ask(ctx, sess, field, widget, label, required, current)
		if errors.Is(err, errRetry) {
			continue
		}
		if err != nil {
			return err
		}
		f.logger.DebugContext(ctx, "answer", "form", sess.Kind(), "field", key, "widget", widget)
		return sess.Set(key, value)
	}
}

var errRetry = errors.New("prompt: retry")

func (f *Filler) ask(ctx context.Context, sess *session.Session, field model.FieldSpec, widget, label string, required bool, current any) (any, error) {
	switch widget {
	case widgets.WidgetConfirm:
		on, _ := current.(bool)
		return f.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: on})

	case widgets.WidgetSelect:
		options, err := sess.Options(field.Key)
		if err != nil {
			return nil, err
		}
		if len(options) == 0 {
			return nil, fmt.Errorf("%w for %s", ErrNoOptions, field.Key)
		}
		choices := append([]string(nil), options...)
		if !required {
			choices = append([]string{noneOption}, choices...)
		}
		idx, err := f.driver.Select(ctx, SelectConfig{
			Message:      label,
			Options:      choices,
			DefaultIndex: indexOf(choices, model.Text(current)),
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(choices) || choices[idx] == noneOption {
			return "", nil
		}
		return choices[idx], nil

	case widgets.WidgetPassword:
		return f.driver.Password(ctx, InputConfig{Message: label})

	case widgets.WidgetDateRange:
		period, _ := current.(model.DateRange)
		from, err := f.driver.Input(ctx, InputConfig{Message: label + " from (YYYY-MM-DD)", Default: period.From})
		if err != nil {
			return nil, err
		}
		to, err := f.driver.Input(ctx, InputConfig{Message: label + " to (YYYY-MM-DD)", Default: period.To})
		if err != nil {
			return nil, err
		}
		return model.DateRange{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}, nil

	case widgets.WidgetFile:
		path, err := f.driver.Input(ctx, InputConfig{Message: label + " (path)", Help: "leave empty to skip"})
		if err != nil {
			return nil, err
		}
		path = strings.TrimSpace(path)
		if path == "" {
			return (*model.FileRef)(nil), nil
		}
		file, err := f.loadFile(path)
		if err != nil {
			if infoErr := f.driver.Info(ctx, f.theme.ErrorPrefix+err.Error()); infoErr != nil {
				return nil, infoErr
			}
			return nil, errRetry
		}
		return file, nil

	case widgets.WidgetNumber:
		return f.driver.Input(ctx, InputConfig{
			Message: label,
			Default: model.Text(current),
			Validator: func(text string) error {
				if strings.TrimSpace(text) == "" {
					return nil
				}
				if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err != nil {
					return errors.New("enter a number")
				}
				return nil
			},
		})

	default:
		cfg := InputConfig{Message: label, Default: model.Text(current)}
		switch widget {
		case widgets.WidgetDate:
			cfg.Message += " (YYYY-MM-DD)"
		case widgets.WidgetTime:
			cfg.Message += " (HH:MM)"
		}
		text, err := f.driver.Input(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(text), nil
	}
}

func (f *Filler) showDerived(ctx context.Context, sess *session.Session) error {
	derived := sess.Derived()
	for _, key := range sess.Visible() {
		value, ok := derived[key]
		if !ok {
			continue
		}
		field, _ := sess.Schema().Field(key)
		if err := f.driver.Info(ctx, fmt.Sprintf("%s%s: %d", f.theme.InfoPrefix, displayLabel(field), value)); err != nil {
			return err
		}
	}
	return nil
}

// nextField returns the first visible, editable field not asked yet.
func nextField(sess *session.Session, asked map[string]bool) (string, bool) {
	for _, key := range sess.Visible() {
		if asked[key] {
			continue
		}
		field, ok := sess.Schema().Field(key)
		if !ok || field.IsDerived() {
			continue
		}
		return key, true
	}
	return "", false
}

func orderedKeys(sess *session.Session, errs validation.ErrorMap) []string {
	position := make(map[string]int)
	for idx, field := range sess.Schema().Fields() {
		position[field.Key] = idx
	}
	keys := errs.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return position[keys[i]] < position[keys[j]]
	})
	return keys
}

func displayLabel(field model.FieldSpec) string {
	if label := strings.TrimSpace(field.Label); label != "" {
		return label
	}
	return field.Key
}

func labelFor(field model.FieldSpec, required bool) string {
	label := displayLabel(field)
	if required {
		label += " *"
	}
	return label
}

func contains(list []string, key string) bool {
	for _, candidate := range list {
		if candidate == key {
			return true
		}
	}
	return false
}
