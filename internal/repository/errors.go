// Package repository defines the MySQL and Redis data access used by the
// auth subsystem together with the sentinel errors shared between them.
// Every mutation is a single statement (or a single server-side script)
// keyed by a unique constraint, so concurrent requests on different
// processes never need client-side locks.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Repositories
// translate sql.ErrNoRows and redis.Nil into it so that callers never
// depend on driver sentinels.
var ErrNotFound = errors.New("not found")
