package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	keyPaperID       = "paper_id"
	keyCustomTags    = "custom_tags"
	keyImageFiles    = "image_files"
	keyImageMetadata = "image_metadata"
	keyReadingTime   = "reading_time"
	keyUploadTime    = "upload_time"
	keyTimeLabel     = "time_label"
)

// Record is one analyzed document as persisted in analysis.json.
//
// Only the fields the repository maintains are typed. Everything else the analysis
// produced (content extraction, figure notes, findings) is kept verbatim in Extra.
type Record struct {
	ID            string
	Bibliography  Document
	ImageFiles    []string
	ImageMetadata []ImageMetadata
	CustomTags    []string
	ReadingTime   string
	UploadTime    string
	TimeLabel     string
	Extra         map[string]json.RawMessage
}

// Title returns the stored title or fallback when none is set.
func (r *Record) Title(fallback string) string {
	if t := r.Bibliography.String(KeyTitle); t != "" {
		return t
	}
	return fallback
}

// Summary builds the list view of the record.
func (r *Record) Summary(fallbackTitle string) Summary {
	tags := append([]string{}, r.CustomTags...)
	return Summary{
		ID:          r.ID,
		Title:       r.Title(fallbackTitle),
		Authors:     r.Bibliography.Strings(KeyAuthors),
		Year:        r.Bibliography.String(KeyYear),
		CustomTags:  tags,
		ReadingTime: r.ReadingTime,
		UploadTime:  r.UploadTime,
		TimeLabel:   r.TimeLabel,
	}
}

// HasTag reports whether tag is among the record's custom tags.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.CustomTags {
		if t == tag {
			return true
		}
	}
	return false
}

// MarshalJSON writes the record with its stable key names, merging Extra back in.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+8)
	for k, v := range r.Extra {
		out[k] = v
	}

	bib := r.Bibliography
	if bib == nil {
		bib = Document{}
	}
	out[KeyBibliography] = bib
	out[keyPaperID] = r.ID
	out[keyCustomTags] = nonNil(r.CustomTags)
	out[keyImageFiles] = nonNil(r.ImageFiles)
	meta := r.ImageMetadata
	if meta == nil {
		meta = []ImageMetadata{}
	}
	out[keyImageMetadata] = meta
	if r.ReadingTime != "" {
		out[keyReadingTime] = r.ReadingTime
	}
	if r.UploadTime != "" {
		out[keyUploadTime] = r.UploadTime
	}
	if r.TimeLabel != "" {
		out[keyTimeLabel] = r.TimeLabel
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads a record leniently: scalars of the wrong JSON type are
// rendered as strings and non-string tags are dropped.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record is not a JSON object")
	}

	*r = Record{Extra: make(map[string]json.RawMessage)}
	for key, value := range raw {
		switch key {
		case keyPaperID:
			r.ID = decodeScalar(value)
		case KeyBibliography:
			var bib Document
			if err := json.Unmarshal(value, &bib); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			r.Bibliography = bib
		case keyCustomTags:
			r.CustomTags = decodeStringList(value)
		case keyImageFiles:
			r.ImageFiles = decodeStringList(value)
		case keyImageMetadata:
			var meta []ImageMetadata
			if err := json.Unmarshal(value, &meta); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			r.ImageMetadata = meta
		case keyReadingTime:
			r.ReadingTime = decodeScalar(value)
		case keyUploadTime:
			r.UploadTime = decodeScalar(value)
		case keyTimeLabel:
			r.TimeLabel = decodeScalar(value)
		default:
			r.Extra[key] = value
		}
	}
	if r.CustomTags == nil {
		r.CustomTags = []string{}
	}
	if r.ImageFiles == nil {
		r.ImageFiles = []string{}
	}
	return nil
}

// UnmarshalJSON accepts figure ids and labels given as numbers.
func (m *ImageMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("image metadata entry must be an object")
	}
	*m = ImageMetadata{
		Filename: stringOf(raw["filename"]),
		FigureID: stringOf(raw["figure_id"]),
		Label:    stringOf(raw["label"]),
		Category: Category(stringOf(raw["category"])),
	}
	return nil
}

func decodeScalar(value json.RawMessage) string {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return ""
	}
	return stringOf(v)
}

func decodeStringList(value json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(value, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
