package store

import (
	sq "github.com/Masterminds/squirrel"
)

// StatementBuilder returns a Squirrel StatementBuilder configured for
// SQLite. SQLite uses '?' placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}
