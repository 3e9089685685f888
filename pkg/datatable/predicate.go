package datatable

import (
	"strings"

	"gorm.io/gorm/clause"
)

// Predicate is a boolean SQL condition
type Predicate = clause.Expression

// ContainsFold matches rows whose field contains keyword, ignoring case.
// Wildcards in keyword are not escaped.
func ContainsFold(field, keyword string) Predicate {
	return clause.Expr{
		SQL:  "LOWER(?) LIKE ?",
		Vars: []interface{}{clause.Column{Name: field}, "%" + strings.ToLower(keyword) + "%"},
	}
}

// Eq matches rows whose field equals value
func Eq(field string, value interface{}) Predicate {
	return clause.Eq{Column: clause.Column{Name: field}, Value: value}
}

// Or combines predicates with OR. A single predicate is returned unchanged:
// GORM joins a one-element OR group to the preceding condition with OR.
func Or(predicates ...Predicate) Predicate {
	switch len(predicates) {
	case 0:
		return nil
	case 1:
		return predicates[0]
	default:
		return clause.Or(predicates...)
	}
}

// And combines predicates with AND
func And(predicates ...Predicate) Predicate {
	switch len(predicates) {
	case 0:
		return nil
	case 1:
		return predicates[0]
	default:
		return clause.And(predicates...)
	}
}

// Tokenize splits keyword on whitespace, dropping empty tokens and repeats
// while keeping first occurrences in order.
func Tokenize(keyword string) []string {
	fields := strings.Fields(keyword)
	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}
