// Package tuplerepo builds repositories over an embedded tuple store.
//
// Declare a repository as a struct of func fields, open a Database and let
// NewRepository fill the fields:
//
//	type Book struct {
//		ID   int64 `tuple:"id,id"`
//		Name string
//		Year int
//	}
//
//	type Books struct {
//		repository.CrudRepository[Book, int64]
//		FindByYearGreaterThan func(ctx context.Context, year int) ([]*Book, error)
//	}
//
//	db, err := tuplerepo.Open(config.NewConfig(config.WithPath("./books.db")))
//	defer db.Close()
//	var books Books
//	_, err = tuplerepo.NewRepository[Book](db, &books)
//	_, err = books.Save(ctx, &Book{ID: 1, Name: "Dune", Year: 1965})
//
// Packages mapping, query and repository hold the machinery; storage/badger
// is the store.
package tuplerepo
