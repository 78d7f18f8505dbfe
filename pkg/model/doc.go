// Package model defines the static form description (FieldSpec, DerivedSpec,
// ValidationSpec, Schema) and the runtime value representation shared by the
// resolver, derivation, validation and submission packages.
//
// Values are stored in a flat Values map keyed by field key. Text-like kinds
// (text, number-as-text, enum, date, time) hold strings; booleans hold bool;
// date ranges hold DateRange; attachments hold *FileRef and derived fields
// hold int. Normalize converts loosely typed input (for example YAML defaults
// or prompt answers) into that representation so equality checks used by the
// cascading reset stay reliable.
package model
