// Package imagemeta computes the annotation list for a record's extracted images.
//
// Normalize is pure: it never touches storage. Callers run it before persisting so a
// rejected edit leaves the stored record untouched.
package imagemeta

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

var (
	// ErrDuplicateCover is returned when more than one image is marked as the cover.
	ErrDuplicateCover = errors.New("only one cover image allowed")
	// ErrMissingFilename is returned when a patch entry does not name its image.
	ErrMissingFilename = errors.New("image metadata entry is missing a filename")
)

// Normalize resolves one annotation per entry of files, in the same order.
//
// For each filename the patch entry wins over the prior entry, which wins over a
// default figure entry. Figure ids are then reassigned left to right: figures take
// the next number, a run of subfigures shares the number of the figure before it
// (or opens a new one), cover and ignore entries get no id and close the group.
func Normalize(files []string, prior, patch []models.ImageMetadata) ([]models.ImageMetadata, error) {
	if len(files) == 0 {
		return []models.ImageMetadata{}, nil
	}

	patchByName := make(map[string]models.ImageMetadata, len(patch))
	for _, entry := range patch {
		name := strings.TrimSpace(entry.Filename)
		if name == "" {
			return nil, ErrMissingFilename
		}
		patchByName[name] = entry
	}
	priorByName := make(map[string]models.ImageMetadata, len(prior))
	for _, entry := range prior {
		if entry.Filename == "" {
			continue
		}
		if _, seen := priorByName[entry.Filename]; !seen {
			priorByName[entry.Filename] = entry
		}
	}

	out := make([]models.ImageMetadata, 0, len(files))
	coverSeen := false
	for _, name := range files {
		base, ok := patchByName[name]
		if !ok {
			base, ok = priorByName[name]
		}
		entry := models.ImageMetadata{Filename: name, Category: models.CategoryFigure}
		if ok {
			entry.Label = strings.TrimSpace(base.Label)
			entry.FigureID = strings.TrimSpace(base.FigureID)
			entry.Category = models.ParseCategory(string(base.Category))
		}

		if entry.Category == models.CategoryCover {
			if coverSeen {
				return nil, ErrDuplicateCover
			}
			coverSeen = true
		}
		out = append(out, entry)
	}

	assignFigureIDs(out)
	return out, nil
}

func assignFigureIDs(entries []models.ImageMetadata) {
	next := 1
	group := ""
	for i := range entries {
		switch entries[i].Category {
		case models.CategoryCover, models.CategoryIgnore:
			entries[i].FigureID = ""
			group = ""
		case models.CategorySubfigure:
			if group == "" {
				group = strconv.Itoa(next)
				next++
			}
			entries[i].FigureID = group
		default:
			group = strconv.Itoa(next)
			next++
			entries[i].FigureID = group
		}
	}
}

// Cover returns the filename of the cover image, or "" when there is none.
func Cover(entries []models.ImageMetadata) string {
	for _, e := range entries {
		if e.Category == models.CategoryCover {
			return e.Filename
		}
	}
	return ""
}

// FigureCount returns the number of distinct figure ids in entries.
func FigureCount(entries []models.ImageMetadata) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.FigureID != "" {
			seen[e.FigureID] = struct{}{}
		}
	}
	return len(seen)
}
