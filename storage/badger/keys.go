package badger

import (
	"fmt"
	"strings"

	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/storage"
)

// Key prefixes for different data types
const (
	spacePrefix = "spc:"
	tuplePrefix = "tup:"
)

// makeSpaceKey generates the catalog key for a space definition.
func makeSpaceKey(space string) []byte {
	return []byte(spacePrefix + space)
}

// makeSpacePrefix generates the prefix shared by every tuple of a space.
// Format: prefix:space\x00
func makeSpacePrefix(space string) []byte {
	buf := make([]byte, 0, len(tuplePrefix)+len(space)+1)
	buf = append(buf, tuplePrefix...)
	buf = append(buf, space...)
	return append(buf, 0x00)
}

// makeTupleKey generates the key of a tuple from its primary key cells.
// Format: prefix:space\x00<order-preserving key>
func makeTupleKey(space string, key core.Tuple) ([]byte, error) {
	encoded, err := storage.MarshalKey(key)
	if err != nil {
		return nil, err
	}
	return append(makeSpacePrefix(space), encoded...), nil
}

func validateSpaceName(space string) error {
	if space == "" || strings.ContainsRune(space, 0) {
		return fmt.Errorf("%w: invalid space name %q", storage.ErrInvalidQuery, space)
	}
	return nil
}
