package apierr

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/newgene/biohub/internal/build"
)

// IsNotFound returns true if the error is or wraps the build store's
// not-found sentinel or a raw pgx.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, build.ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
