package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrRollbackFailed はロールバック実行時のエラー。
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrMigrationNotFound は指定されたバージョンのマイグレーションが登録されていない場合のエラー。
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrUnknownMigration は適用履歴にあるバージョンがレジストリに存在しない場合のエラー。
	ErrUnknownMigration = errors.New("applied migration is missing from registry")

	// ErrDuplicateMigration は同じバージョンのマイグレーションが複数登録されている場合のエラー。
	ErrDuplicateMigration = errors.New("duplicate migration version")

	// ErrNoAppliedMigrations はロールバック対象がない場合のエラー。
	ErrNoAppliedMigrations = errors.New("no applied migrations")

	// ErrInvalidSteps はステップ数が不正な場合のエラー。
	ErrInvalidSteps = errors.New("invalid steps")
)

// DatabaseErrorReason はデータベースエラーの分類。
type DatabaseErrorReason string

const (
	DatabaseErrorColumnNotFound DatabaseErrorReason = "column_not_found"
	DatabaseErrorColumnExists   DatabaseErrorReason = "column_exists"
	DatabaseErrorTableNotFound  DatabaseErrorReason = "table_not_found"
	DatabaseErrorOther          DatabaseErrorReason = "other"
)

// DatabaseError はスキーマ操作でドライバが返したエラーをラップする。
// 元のエラーは Unwrap で取り出せる。
type DatabaseError struct {
	Op     string
	Table  string
	Column string
	Reason DatabaseErrorReason
	Err    error
}

func (e *DatabaseError) Error() string {
	target := e.Table
	if e.Column != "" {
		target += "." + e.Column
	}
	return fmt.Sprintf("database error: %s %s (%s): %v", e.Op, target, e.Reason, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// IsDatabaseErrorReason はエラーチェーンに指定した分類の DatabaseError が含まれるか判定する。
func IsDatabaseErrorReason(err error, reason DatabaseErrorReason) bool {
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) {
		return false
	}
	return dbErr.Reason == reason
}
