package models

import (
	"strconv"
	"strings"
)

// Keys of the bibliographic block stored under KeyBibliography.
const (
	KeyBibliography = "文献信息"
	KeyTitle        = "标题"
	KeyAuthors      = "作者"
	KeyYear         = "年份"
	KeyJournal      = "期刊"
)

// UntitledFallback is shown when a record has no title.
const UntitledFallback = "Untitled"

// Category classifies an extracted image
type Category string

const (
	CategoryFigure    Category = "figure"
	CategorySubfigure Category = "subfigure"
	CategoryCover     Category = "cover"
	CategoryIgnore    Category = "ignore"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFigure, CategorySubfigure, CategoryCover, CategoryIgnore:
		return true
	}
	return false
}

// ParseCategory lower-cases and trims s. Unknown or empty values become CategoryFigure.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return CategoryFigure
	}
	return c
}

// ImageMetadata annotates one entry of a record's image_files
type ImageMetadata struct {
	Filename string   `json:"filename"`
	FigureID string   `json:"figure_id"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
}

// Summary is the list view of a record
type Summary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Year        string   `json:"year"`
	CustomTags  []string `json:"custom_tags"`
	ReadingTime string   `json:"reading_time,omitempty"`
	UploadTime  string   `json:"upload_time,omitempty"`
	TimeLabel   string   `json:"time_label,omitempty"`
}

// TagStat is the usage count of one tag across the corpus
type TagStat struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Document is a JSON object whose values are passed through without interpretation.
type Document map[string]any

// String returns the value at key rendered as a string, or "".
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	return stringOf(d[key])
}

// Strings returns the value at key as a list of strings. A bare string becomes a
// one-element list; non-scalar list members are dropped.
func (d Document) Strings(key string) []string {
	if d == nil {
		return []string{}
	}
	switch v := d[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case string, float64, bool:
				out = append(out, stringOf(item))
			}
		}
		return out
	case []string:
		return append([]string{}, v...)
	case nil:
		return []string{}
	default:
		if s := stringOf(v); s != "" {
			return []string{s}
		}
		return []string{}
	}
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ScalarString renders a decoded JSON scalar as a string. Objects, arrays and null
// become "".
func ScalarString(v any) string {
	return stringOf(v)
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
