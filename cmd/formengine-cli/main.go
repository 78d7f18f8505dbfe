package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/pkg/clientstate"
	"github.com/goliatone/go-formengine/pkg/config"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/prompt"
	"github.com/goliatone/go-formengine/pkg/registry"
	"github.com/goliatone/go-formengine/pkg/submission"
	"github.com/goliatone/go-formengine/pkg/transport/httptransport"
)

func main() {
	form := flag.String("form", "", "form to fill (see -list)")
	configPath := flag.String("config", "", "YAML configuration file")
	dryRun := flag.Bool("dry-run", false, "print the payload instead of sending it")
	list := flag.Bool("list", false, "list the available forms")
	lang := flag.String("lang", "", "UI language to store in client state (sq, en, sr)")
	formsDir := flag.String("forms", "", "directory of form documents replacing the built-in ones")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, options{
		form:       *form,
		configPath: *configPath,
		dryRun:     *dryRun,
		list:       *list,
		lang:       *lang,
		formsDir:   *formsDir,
	}, os.Stdout); err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			os.Exit(130)
		}
		log.Fatalf("formengine: %v", err)
	}
}

type options struct {
	form       string
	configPath string
	dryRun     bool
	list       bool
	lang       string
	formsDir   string
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	engineOpts := []formengine.Option{formengine.WithLogger(logger)}
	if dir := strings.TrimSpace(opts.formsDir); dir != "" {
		reg, err := registry.LoadFS(os.DirFS(dir))
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, formengine.WithRegistry(reg))
	}
	engine, err := formengine.New(engineOpts...)
	if err != nil {
		return err
	}
	if opts.list {
		for _, kind := range engine.Kinds() {
			fmt.Fprintln(out, kind)
		}
		return nil
	}
	if strings.TrimSpace(opts.form) == "" {
		return errors.New("-form is required (see -list)")
	}

	sess, err := engine.Open(model.FormKind(opts.form))
	if err != nil {
		return err
	}

	store, err := clientstate.NewFileStore(cfg.State.Path)
	if err != nil {
		return err
	}
	language := opts.lang
	if language == "" {
		language = cfg.Language
	}
	if _, err := clientstate.SetLanguage(ctx, store, language); err != nil {
		return err
	}

	transport, err := newTransport(ctx, cfg, store, logger, opts.dryRun, out)
	if err != nil {
		return err
	}
	coord, err := engine.Coordinator(transport, submission.WithNavigator(submission.NavigatorFunc(
		func(_ context.Context, outcome submission.Outcome) error {
			_, err := fmt.Fprintf(out, "Submitted %s (reference %q)\n", outcome.Kind, outcome.Receipt.Reference)
			return err
		},
	)))
	if err != nil {
		return err
	}

	driver := prompt.NewSurveyDriver()
	filler := prompt.New(prompt.WithDriver(driver), prompt.WithLogger(logger.WithGroup("prompt")))
	if err := filler.Fill(ctx, sess); err != nil {
		return err
	}

	for {
		_, err := coord.Submit(ctx, sess)
		var invalid *submission.ValidationFailure
		var failed *submission.TransportError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &invalid):
			if err := filler.Fix(ctx, sess, invalid.Errors); err != nil {
				return err
			}
		case errors.As(err, &failed):
			if err := driver.Info(ctx, failed.Message); err != nil {
				return err
			}
			retry, confirmErr := driver.Confirm(ctx, prompt.ConfirmConfig{Message: "Try again?", Default: true})
			if confirmErr != nil {
				return confirmErr
			}
			if !retry {
				return failed
			}
		default:
			return err
		}
	}
}

func newTransport(ctx context.Context, cfg config.Config, store clientstate.Store, logger *slog.Logger, dryRun bool, out io.Writer) (submission.Transport, error) {
	if dryRun {
		return submission.TransportFunc(func(_ context.Context, payload submission.Payload) (submission.Receipt, error) {
			return submission.Receipt{Status: 200, Reference: "dry-run"}, printPayload(out, payload)
		}), nil
	}
	return httptransport.New(ctx,
		httptransport.WithBaseURL(cfg.API.BaseURL),
		httptransport.WithAPIKey(cfg.API.Key),
		httptransport.WithAPIKeyHeader(cfg.API.KeyHeader),
		httptransport.WithTimeout(cfg.API.Timeout),
		httptransport.WithStateStore(store),
		httptransport.WithLogger(logger.WithGroup("httptransport")),
	)
}

func printPayload(out io.Writer, payload submission.Payload) error {
	type attachment struct {
		Field    string `json:"field"`
		Name     string `json:"name"`
		MIMEType string `json:"mimeType"`
		Size     int64  `json:"size"`
	}
	view := struct {
		SubmissionID string            `json:"submissionId"`
		Kind         model.FormKind    `json:"kind"`
		Fields       map[string]string `json:"fields"`
		Attachments  []attachment      `json:"attachments,omitempty"`
	}{
		SubmissionID: payload.SubmissionID.String(),
		Kind:         payload.Kind,
		Fields:       payload.Fields,
	}
	for _, file := range payload.Attachments {
		view.Attachments = append(view.Attachments, attachment{Field: file.Field, Name: file.Name, MIMEType: file.MIMEType, Size: file.Size})
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(view)
}
