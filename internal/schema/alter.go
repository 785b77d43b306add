// Package schema はスキーマ変更 DDL の組み立てと実行を提供する。
package schema

import (
	"errors"
	"fmt"

	"gorm.io/gorm/clause"
)

// 対応するダイアレクト名（gorm.Dialector.Name() の値）。
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// ErrInvalidDefinition はスキーマ定義が不正な場合のエラー。
var ErrInvalidDefinition = errors.New("invalid schema definition")

// Statement は実行可能な DDL 1文を表す。
// Vars のテーブル名・カラム名は実行時に gorm のダイアレクトでクォートされる。
type Statement struct {
	Op     string
	Column string
	SQL    string
	Vars   []interface{}
}

type alterOp struct {
	drop   bool
	column *ColumnDef
}

// TableAlter は ALTER TABLE のビルダー。
type TableAlter struct {
	table string
	ops   []alterOp
}

// AlterTable は指定テーブルへの変更を組み立てる。
func AlterTable(table string) *TableAlter {
	return &TableAlter{table: table}
}

// Table は対象テーブル名を返す。
func (a *TableAlter) Table() string {
	return a.table
}

// DropColumn はカラム削除を追加する。
func (a *TableAlter) DropColumn(name string) *TableAlter {
	a.ops = append(a.ops, alterOp{drop: true, column: NewColumn(name)})
	return a
}

// AddColumn はカラム追加を追加する。
func (a *TableAlter) AddColumn(col *ColumnDef) *TableAlter {
	a.ops = append(a.ops, alterOp{column: col})
	return a
}

// Statements は操作ごとに1つの ALTER TABLE 文を生成する。
// SQLite は1文で複数の変更を扱えないため、全ダイアレクトで分割している。
func (a *TableAlter) Statements(dialect string) ([]Statement, error) {
	if a.table == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidDefinition)
	}
	if len(a.ops) == 0 {
		return nil, fmt.Errorf("%w: no alterations for table %s", ErrInvalidDefinition, a.table)
	}

	stmts := make([]Statement, 0, len(a.ops))
	for _, op := range a.ops {
		if op.column == nil || op.column.name == "" {
			return nil, fmt.Errorf("%w: column name is required for table %s", ErrInvalidDefinition, a.table)
		}

		if op.drop {
			stmts = append(stmts, Statement{
				Op:     "drop_column",
				Column: op.column.name,
				SQL:    "ALTER TABLE ? DROP COLUMN ?",
				Vars:   []interface{}{clause.Table{Name: a.table}, clause.Column{Name: op.column.name}},
			})
			continue
		}

		def, err := op.column.definitionSQL(dialect)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, Statement{
			Op:     "add_column",
			Column: op.column.name,
			SQL:    "ALTER TABLE ? ADD COLUMN ? ?",
			Vars:   []interface{}{clause.Table{Name: a.table}, clause.Column{Name: op.column.name}, clause.Expr{SQL: def}},
		})
	}
	return stmts, nil
}
