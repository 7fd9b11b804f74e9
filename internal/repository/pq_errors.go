package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	apperrors "slotkeeper/internal/errors"
)

const (
	pqUniqueViolation      = "23505"
	pqExclusionViolation   = "23P01"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isRetryable(err error) bool {
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

func notFound(err error, sentinel *apperrors.DomainError) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
