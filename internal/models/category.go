package models

import (
	"fmt"
	"strings"
)

// Category selects the content-type allow-list and size limit for an upload.
type Category string

const (
	CategoryCover          Category = "cover"
	CategoryReferenceAudio Category = "reference-audio"
	CategoryDemoAudio      Category = "demo-audio"
	CategoryModelFile      Category = "model-file"
	CategoryDatasetFile    Category = "dataset-file"
	CategoryGeneral        Category = "general"
)

const mib = 1024 * 1024

// Rule is the validation rule for one category. A nil AllowedTypes list
// accepts any content type.
type Rule struct {
	AllowedTypes []string
	MaxSize      int64
}

var audioTypes = []string{"audio/wav", "audio/mp3", "audio/mpeg", "audio/ogg", "audio/m4a"}

var rules = map[Category]Rule{
	CategoryCover: {
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
		MaxSize:      5 * mib,
	},
	CategoryReferenceAudio: {AllowedTypes: audioTypes, MaxSize: 10 * mib},
	CategoryDemoAudio:      {AllowedTypes: audioTypes, MaxSize: 10 * mib},
	CategoryModelFile: {
		AllowedTypes: []string{"application/zip", "application/x-zip-compressed", "application/octet-stream"},
		MaxSize:      500 * mib,
	},
	CategoryDatasetFile: {
		AllowedTypes: []string{"application/zip", "application/x-zip-compressed", "application/x-rar-compressed", "application/x-7z-compressed"},
		MaxSize:      500 * mib,
	},
	CategoryGeneral: {MaxSize: 100 * mib},
}

// ParseCategory returns the category named by s.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if _, ok := rules[c]; !ok {
		return "", fmt.Errorf("unknown file category %q", s)
	}
	return c, nil
}

// Rule returns the validation rule for c.
func (c Category) Rule() Rule {
	return rules[c]
}

// Allows reports whether contentType may be stored under c. Parameters such
// as "; charset=..." are ignored.
func (c Category) Allows(contentType string) bool {
	rule, ok := rules[c]
	if !ok {
		return false
	}
	if rule.AllowedTypes == nil {
		return true
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, t := range rule.AllowedTypes {
		if t == mediaType {
			return true
		}
	}
	return false
}

// CheckSize returns an error when size exceeds the category limit.
func (c Category) CheckSize(size int64) error {
	rule, ok := rules[c]
	if !ok {
		return fmt.Errorf("unknown file category %q", c)
	}
	if size > rule.MaxSize {
		return fmt.Errorf("file size %d exceeds %d MB limit for %s", size, rule.MaxSize/mib, c)
	}
	return nil
}

// MaxCategorySize is the largest size any category accepts.
func MaxCategorySize() int64 {
	var max int64
	for _, r := range rules {
		if r.MaxSize > max {
			max = r.MaxSize
		}
	}
	return max
}
