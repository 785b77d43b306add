package schema

import (
	"errors"
	"strings"

	"github.com/VividCortex/mysqlerr"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"migration-service/internal/domain"
)

// newDatabaseError はドライバのエラーを DatabaseError にラップする。
func newDatabaseError(op, table, column string, err error) *domain.DatabaseError {
	return &domain.DatabaseError{
		Op:     op,
		Table:  table,
		Column: column,
		Reason: classify(err),
		Err:    err,
	}
}

// classify はドライバ固有のエラーコードから分類を判定する。
func classify(err error) domain.DatabaseErrorReason {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UndefinedColumn:
			return domain.DatabaseErrorColumnNotFound
		case pgerrcode.DuplicateColumn:
			return domain.DatabaseErrorColumnExists
		case pgerrcode.UndefinedTable:
			return domain.DatabaseErrorTableNotFound
		}
		return domain.DatabaseErrorOther
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlerr.ER_CANT_DROP_FIELD_OR_KEY, mysqlerr.ER_BAD_FIELD_ERROR:
			return domain.DatabaseErrorColumnNotFound
		case mysqlerr.ER_DUP_FIELDNAME:
			return domain.DatabaseErrorColumnExists
		case mysqlerr.ER_NO_SUCH_TABLE:
			return domain.DatabaseErrorTableNotFound
		}
		return domain.DatabaseErrorOther
	}

	// SQLite は DDL の失敗をすべて SQLITE_ERROR で返すため、その場合だけメッセージで判定する
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code != sqlite3.ErrError {
			return domain.DatabaseErrorOther
		}
		return classifyMessage(liteErr.Error())
	}

	return classifyMessage(err.Error())
}

// classifyMessage は SQLite のようにコードで区別できないエラーをメッセージで判定する。
func classifyMessage(msg string) domain.DatabaseErrorReason {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "no such column"):
		return domain.DatabaseErrorColumnNotFound
	case strings.Contains(msg, "duplicate column"):
		return domain.DatabaseErrorColumnExists
	case strings.Contains(msg, "no such table"):
		return domain.DatabaseErrorTableNotFound
	}
	return domain.DatabaseErrorOther
}
