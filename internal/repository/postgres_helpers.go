package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Postgres error codes the repositories translate
const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgQueryCanceled     = "57014"
	pgForeignKeyMissing = "23503"
)

// nullString converts empty string to nil for nullable columns
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapLockError turns lock_timeout and statement cancellation into ErrTimeout
func mapLockError(err error) error {
	switch pgCode(err) {
	case pgLockNotAvailable, pgQueryCanceled:
		return domain.ErrTimeout
	}
	return err
}

func spanFail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
