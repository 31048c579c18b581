// Package softdelete carries the opt-in that lets a repository read
// soft-deleted rows. Every finder hides deleted rows unless the caller's
// context was built with IncludeDeleted.
package softdelete

import "context"

type ctxKey struct{}

// IncludeDeleted returns a context under which repositories also return
// soft-deleted records.
func IncludeDeleted(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, true)
}

// Included reports whether ctx opted in to soft-deleted records.
func Included(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

// Visible reports whether a record with the given deleted flag should be
// returned under ctx.
func Visible(ctx context.Context, deleted bool) bool {
	return !deleted || Included(ctx)
}

// Clause returns the SQL predicate for the default filter, or "" when the
// context opted in. column is the boolean deleted column, optionally qualified.
func Clause(ctx context.Context, column string) string {
	if Included(ctx) {
		return ""
	}
	return column + " = false"
}
