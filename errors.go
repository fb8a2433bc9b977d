package strcore

import (
	"fmt"

	"github.com/rawbytedev/strcore/pkg/alloc"
)

// ErrOutOfMemory is returned, wrapped, by every operation that could not
// obtain memory. The core is left unchanged when it is returned.
var ErrOutOfMemory = alloc.ErrOutOfMemory

func wrap(op string, err error) error {
	return fmt.Errorf("strcore: %s: %w", op, err)
}
