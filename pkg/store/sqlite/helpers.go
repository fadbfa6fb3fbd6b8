package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/corebank/pkg/domain"
)

// Times are stored as Unix seconds, money amounts as decimal strings.

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func deletionColumns(d *domain.Deletion) (sql.NullInt64, sql.NullString) {
	if d == nil {
		return sql.NullInt64{}, sql.NullString{}
	}
	return sql.NullInt64{Int64: d.At.Unix(), Valid: true},
		sql.NullString{String: d.By, Valid: true}
}

func scanDeletion(deletedAt sql.NullInt64, deletedBy sql.NullString) *domain.Deletion {
	if !deletedAt.Valid {
		return nil
	}
	return &domain.Deletion{At: fromUnix(deletedAt.Int64), By: deletedBy.String}
}

func scanMoney(amount, currency string) (domain.Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Money{}, fmt.Errorf("%w: corrupt amount %q: %v", domain.ErrInternal, amount, err)
	}
	return domain.Money{Amount: d, Currency: currency}, nil
}
