package submission

import (
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/session"
)

// Attachment is a file sent alongside the text fields of a multipart
// submission.
type Attachment struct {
	Field    string
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

// Payload is the flat external representation of a form at submit time.
type Payload struct {
	SubmissionID uuid.UUID
	SessionID    uuid.UUID
	Kind         model.FormKind
	Fields       map[string]string
	Attachments  []Attachment
	CapturedAt   time.Time
}

// PayloadBuilder turns a session snapshot into a Payload. Field values are
// sent exactly as they were validated. Only attachment file names, which come
// from the local file system rather than the user, are cleaned.
type PayloadBuilder struct {
	policy *bluemonday.Policy
}

// NewPayloadBuilder returns a builder using bluemonday's strict policy.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{policy: bluemonday.StrictPolicy()}
}

// Build flattens the visible fields of snap. Date ranges become `<key>.from`
// and `<key>.to`, booleans "true"/"false", derived numbers decimal strings and
// non-empty files attachments.
func (b *PayloadBuilder) Build(snap session.Snapshot) Payload {
	payload := Payload{
		SubmissionID: uuid.New(),
		SessionID:    snap.SessionID,
		Fields:       make(map[string]string, len(snap.Visible)),
		CapturedAt:   snap.CapturedAt,
	}
	if snap.Schema != nil {
		payload.Kind = snap.Schema.Kind()
	}

	for _, key := range snap.Visible {
		field, ok := snap.Schema.Field(key)
		if !ok {
			continue
		}
		value := snap.Values[key]
		switch field.Type {
		case model.FieldTypeDateRange:
			period, _ := value.(model.DateRange)
			payload.Fields[key+".from"] = period.From
			payload.Fields[key+".to"] = period.To
		case model.FieldTypeBoolean:
			on, _ := value.(bool)
			payload.Fields[key] = strconv.FormatBool(on)
		case model.FieldTypeDerived:
			payload.Fields[key] = strconv.Itoa(snap.Derived[key])
		case model.FieldTypeFile:
			file, _ := value.(*model.FileRef)
			if model.IsEmpty(file) {
				continue
			}
			payload.Attachments = append(payload.Attachments, Attachment{
				Field:    key,
				Name:     b.FileName(file.Name),
				MIMEType: file.MIMEType,
				Size:     file.Size,
				Data:     append([]byte(nil), file.Data...),
			})
		default:
			payload.Fields[key] = model.Text(value)
		}
	}
	return payload
}

// FileName removes markup and path separators from an attachment name and
// returns it NFC-normalised. An empty result falls back to "attachment".
func (b *PayloadBuilder) FileName(name string) string {
	clean := html.UnescapeString(b.policy.Sanitize(name))
	clean = strings.TrimSpace(norm.NFC.String(clean))
	if i := strings.LastIndexAny(clean, `/\`); i >= 0 {
		clean = clean[i+1:]
	}
	if clean == "" {
		return "attachment"
	}
	return clean
}
