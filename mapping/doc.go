// Package mapping describes how Go structs map onto store tuples and converts
// between the two.
//
// Fields are mapped through the `tuple` struct tag:
//
//	type Book struct {
//		ID        int64  `tuple:"id,id"`
//		UniqueKey string `tuple:"unique_key"`
//		Name      string
//		Author    string `tuple:",nullable"`
//		Year      int
//		Cached    string `tuple:"-"`
//	}
//
// Positions follow declaration order unless `pos=N` is given. Exactly one
// field is the identity: the one tagged `id`, or else a field named ID.
// Metadata is built once per type and cached, failures included.
package mapping
