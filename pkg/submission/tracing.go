package submission

import "go.opentelemetry.io/otel"

var tracer = otel.GetTracerProvider().Tracer("github.com/goliatone/go-formengine/pkg/submission")
