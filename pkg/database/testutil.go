package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// NewMockPool returns a pgxmock pool that satisfies DBTX. Callers should
// check ExpectationsWereMet at the end of each test.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool()
}
