package model

import (
	"fmt"
	"strings"
)

// NumCategories is the width of a label vector in the disaster response set.
const NumCategories = 36

// DefaultMessageColumn holds the free-text feature.
const DefaultMessageColumn = "message"

// DefaultCategories lists the disaster response category columns in the
// order they appear in the labeled messages table.
var DefaultCategories = []string{
	"related",
	"request",
	"offer",
	"aid_related",
	"medical_help",
	"medical_products",
	"search_and_rescue",
	"security",
	"military",
	"child_alone",
	"water",
	"food",
	"shelter",
	"clothing",
	"money",
	"missing_people",
	"refugees",
	"death",
	"other_aid",
	"infrastructure_related",
	"transport",
	"buildings",
	"electricity",
	"tools",
	"hospitals",
	"shops",
	"aid_centers",
	"other_infrastructure",
	"weather_related",
	"floods",
	"storm",
	"fire",
	"earthquake",
	"cold",
	"other_weather",
	"direct_report",
}

// Schema describes where the feature and label columns live in the source table.
type Schema struct {
	Table         string
	MessageColumn string
	// Categories are the label columns, validated by name. Ignored when
	// InferCategories is set.
	Categories []string
	// InferCategories takes the trailing NumCategories columns of the table
	// as labels instead of looking them up by name.
	InferCategories bool
	NumCategories   int
}

// DefaultSchema returns the schema of the standard messages table.
func DefaultSchema(table string) Schema {
	cats := make([]string, len(DefaultCategories))
	copy(cats, DefaultCategories)
	return Schema{
		Table:         table,
		MessageColumn: DefaultMessageColumn,
		Categories:    cats,
		NumCategories: NumCategories,
	}
}

// Validate checks that the schema is usable before touching the database.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Table) == "" {
		return fmt.Errorf("%w: table name is empty", ErrInvalidSchema)
	}
	if strings.TrimSpace(s.MessageColumn) == "" {
		return fmt.Errorf("%w: message column is empty", ErrInvalidSchema)
	}
	if s.InferCategories {
		if s.NumCategories <= 0 {
			return fmt.Errorf("%w: category count must be positive, got %d", ErrInvalidSchema, s.NumCategories)
		}
		return nil
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("%w: no category columns", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		if c == s.MessageColumn {
			return fmt.Errorf("%w: %q is both message and category column", ErrInvalidSchema, c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate category column %q", ErrInvalidSchema, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}
