package storage

import (
	"fmt"
	"strings"
)

// dialect различия SQL между поддерживаемыми драйверами. Запросы пишутся
// с плейсхолдером "?" и переводятся в нужный вид через sqlx.Rebind.
type dialect struct {
	driver      string
	tableExists string
	columns     string
	usersOrder  func(q *selectBuilder) []string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver:      DriverSQLite,
		tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		columns:     `SELECT name FROM pragma_table_info(?)`,
		usersOrder: func(q *selectBuilder) []string {
			return []string{quote(q.table) + ".rowid"}
		},
	},
	DriverPgx: {
		driver: DriverPgx,
		tableExists: `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = ?`,
		columns: `SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ?
			ORDER BY ordinal_position`,
		usersOrder: func(q *selectBuilder) []string {
			if c, ok := q.source("telegram_id"); ok {
				return []string{c}
			}
			return nil
		},
	},
}

// selectBuilder собирает SELECT по списку ожидаемых колонок: существующие читаются
// как текст, отсутствующие подставляются как NULL.
type selectBuilder struct {
	table      string
	projection []string
	columns    map[string]struct{}
	conditions []string
	order      []string
}

func newSelect(table string, want []string, columns map[string]struct{}) *selectBuilder {
	projection := make([]string, 0, len(want))
	for _, c := range want {
		if _, ok := columns[c]; ok {
			projection = append(projection, fmt.Sprintf(`CAST(%s AS TEXT) AS %s`, quote(c), c))
			continue
		}
		projection = append(projection, "NULL AS "+c)
	}
	return &selectBuilder{table: table, projection: projection, columns: columns}
}

// source возвращает колонку таблицы с квалификатором. Без него ORDER BY
// связывается с текстовым псевдонимом из проекции и сортирует строки как строки.
func (b *selectBuilder) source(column string) (string, bool) {
	if _, ok := b.columns[column]; !ok {
		return "", false
	}
	return quote(b.table) + "." + quote(column), true
}

func (b *selectBuilder) where(cond string) {
	b.conditions = append(b.conditions, cond)
}

func (b *selectBuilder) orderBy(terms ...string) {
	b.order = append(b.order, terms...)
}

func (b *selectBuilder) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quote(b.table))
	if len(b.conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conditions, " AND "))
	}
	if len(b.order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.order, ", "))
	}
	return sb.String()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
