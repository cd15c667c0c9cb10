// Package query derives invocation plans from repository method declarations.
//
// A method is a func-typed struct field whose first parameter is a
// context.Context and whose last result is an error. Bind classifies it by
// name and shape, in this order:
//
//	FindById(ctx, id) (*E, error)            CRUD primitives
//	Save(ctx, *E) (*E, error)
//	GetInteger func(ctx) (int, error) `call:"getInteger"`
//	FindByYearGreaterThan(ctx, int) ([]*E, error)
//	FindByBook(ctx, *E) ([]*E, error)        find by example
//
// Derived query names follow FindBy<Field>[<Op>](And<Field>[<Op>])* where Op
// is one of Is, Equals, Not, GreaterThan, GreaterThanEqual, LessThan,
// LessThanEqual (the GreaterThen/LessThen spellings are accepted too). A
// trailing Proxy is ignored. Parameters bind to clauses in order.
package query
