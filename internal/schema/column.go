package schema

import (
	"fmt"
	"strings"
)

type columnKind int

const (
	columnKindText columnKind = iota
	columnKindString
	columnKindBigInt
	columnKindTimestamp
)

// ColumnDef はカラム定義のビルダー。型を指定しない場合は text になる。
// NotNull を呼ばない限り NULL 許容。
type ColumnDef struct {
	name     string
	kind     columnKind
	size     int
	notNull  bool
	defaultV string
}

// NewColumn は新しいカラム定義を生成する。
func NewColumn(name string) *ColumnDef {
	return &ColumnDef{name: name, kind: columnKindText}
}

// Name はカラム名を返す。
func (c *ColumnDef) Name() string {
	return c.name
}

// Text はカラム型を text にする。
func (c *ColumnDef) Text() *ColumnDef {
	c.kind = columnKindText
	return c
}

// String はカラム型を varchar(size) にする。
func (c *ColumnDef) String(size int) *ColumnDef {
	c.kind = columnKindString
	c.size = size
	return c
}

// BigInt はカラム型を bigint にする。
func (c *ColumnDef) BigInt() *ColumnDef {
	c.kind = columnKindBigInt
	return c
}

// Timestamp はカラム型をダイアレクトごとの日時型にする。
func (c *ColumnDef) Timestamp() *ColumnDef {
	c.kind = columnKindTimestamp
	return c
}

// NotNull は NOT NULL 制約を付ける。
func (c *ColumnDef) NotNull() *ColumnDef {
	c.notNull = true
	return c
}

// Default はデフォルト値を SQL 式として設定する。値はそのまま DDL に埋め込まれる。
func (c *ColumnDef) Default(expr string) *ColumnDef {
	c.defaultV = expr
	return c
}

// typeSQL はダイアレクトに応じた型名を返す。
func (c *ColumnDef) typeSQL(dialect string) (string, error) {
	switch c.kind {
	case columnKindText:
		return "text", nil
	case columnKindString:
		if c.size <= 0 {
			return "", fmt.Errorf("%w: varchar size must be positive for column %s", ErrInvalidDefinition, c.name)
		}
		return fmt.Sprintf("varchar(%d)", c.size), nil
	case columnKindBigInt:
		return "bigint", nil
	case columnKindTimestamp:
		switch dialect {
		case DialectPostgres:
			return "timestamp with time zone", nil
		case DialectMySQL:
			return "datetime(6)", nil
		default:
			return "datetime", nil
		}
	}
	return "", fmt.Errorf("%w: unknown column type for column %s", ErrInvalidDefinition, c.name)
}

// definitionSQL はカラム名を除いた定義部分（型と制約）を返す。
func (c *ColumnDef) definitionSQL(dialect string) (string, error) {
	typ, err := c.typeSQL(dialect)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(typ)
	if c.notNull {
		b.WriteString(" NOT NULL")
	}
	if c.defaultV != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.defaultV)
	}
	return b.String(), nil
}
