package permissions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapWriteErrorDuplicateName(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_permissions_name"}
	got := mapWriteError(fmt.Errorf("insert permission: %w", pgErr))
	require.ErrorIs(t, got, ErrDuplicateName)
}

func TestMapWriteErrorDanglingParent(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "fk_permissions_parent"}
	got := mapWriteError(fmt.Errorf("update permission: %w", pgErr))
	require.ErrorIs(t, got, ErrParentNotFound)
}

func TestMapWriteErrorPassesThroughUnknownConstraints(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "ck_permissions_element_type"}
	got := mapWriteError(pgErr)
	require.NotErrorIs(t, got, ErrDuplicateName)
	require.NotErrorIs(t, got, ErrParentNotFound)
	require.ErrorIs(t, got, pgErr)
}

func TestMapWriteErrorPassesThroughPlainErrors(t *testing.T) {
	err := errors.New("connection reset")
	require.Equal(t, err, mapWriteError(err))
}
