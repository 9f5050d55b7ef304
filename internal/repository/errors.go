// Package repository defines the MySQL-backed slot and waitlist stores and
// the error values they share.  Higher layers distinguish "no such row" from
// "row held by another transaction" through ErrNotFound and ErrLocked; both
// are returned wrapped, so compare with errors.Is.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the row a caller asked to read or lock does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrLocked is returned when a non-blocking lock attempt finds the row held
// by another transaction.  The caller may retry.
var ErrLocked = errors.New("row locked by another transaction")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// MySQL server error numbers the stores translate.
const (
	erDupEntry        = 1062
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
	erLockNowait      = 3572 // FOR UPDATE NOWAIT hit a locked row
)

// translate maps driver errors onto the package sentinels.  Errors that are
// not recognised are returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erLockNowait, erLockWaitTimeout, erLockDeadlock:
			return fmt.Errorf("%w: %s", ErrLocked, me.Message)
		case erDupEntry:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		}
	}
	return err
}
