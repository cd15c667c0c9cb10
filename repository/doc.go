// Package repository implements repository structs declared as func fields.
//
// A repository is a struct whose exported func fields are its methods:
//
//	type BookRepository struct {
//		repository.CrudRepository[Book, int64]
//
//		FindByYearGreaterThan func(ctx context.Context, year int) ([]*Book, error)
//		GetListByName         func(ctx context.Context, names []string) ([]*Book, error) `call:"getListByName"`
//	}
//
//	var books BookRepository
//	_, err := repository.New[Book](store, &books)
//	found, err := books.FindByYearGreaterThan(ctx, 1960)
//
// New derives a plan for every field once and fills the field with a
// function bound to that plan. See package query for the naming rules.
// Methods run on the caller's goroutine; a repository starts no goroutines
// and holds nothing that needs releasing.
package repository
