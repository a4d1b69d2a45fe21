// Package storage реализует доступ только на чтение к базе Telegram-бота
// (таблицы users, payments, settings). Поддерживаются SQLite (mattn/go-sqlite3)
// и PostgreSQL (pgx).
//
// Схема базы принадлежит боту и может отставать или опережать ожидания сервиса,
// поэтому отсутствующая таблица даёт пустой результат, а отсутствующая колонка
// читается как NULL. Все колонки читаются текстом: разбором значений занимается
// слой снапшота, а не драйвер.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	// Регистрация драйвера sqlite3.
	_ "github.com/mattn/go-sqlite3"

	"github.com/magabrotheeeer/subscription-snapshot/internal/config"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
)

const (
	// DriverSQLite имя драйвера SQLite.
	DriverSQLite = "sqlite3"
	// DriverPgx имя драйвера PostgreSQL.
	DriverPgx = "pgx"

	tableUsers    = "users"
	tablePayments = "payments"
	tableSettings = "settings"
)

// ErrUnsupportedDriver возвращается для неизвестного драйвера.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Storage инкапсулирует соединение с базой бота.
type Storage struct {
	DB      *sqlx.DB
	dialect dialect
}

// New открывает базу и проверяет соединение. SQLite открывается только на чтение.
func New(ctx context.Context, cfg config.Storage) (*Storage, error) {
	const op = "storage.New"

	d, dsn, err := resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{DB: db, dialect: d}, nil
}

// NewWithDB оборачивает уже открытое соединение.
func NewWithDB(db *sqlx.DB) (*Storage, error) {
	const op = "storage.NewWithDB"

	d, ok := dialects[db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedDriver, db.DriverName())
	}
	return &Storage{DB: db, dialect: d}, nil
}

func resolve(cfg config.Storage) (dialect, string, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return dialect{}, "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}
	if d.driver == DriverPgx {
		return d, cfg.DSN, nil
	}
	if cfg.DSN != "" {
		return d, cfg.DSN, nil
	}
	return d, SQLiteReadOnlyDSN(cfg.Path), nil
}

// SQLiteReadOnlyDSN строит DSN для открытия файла SQLite только на чтение.
func SQLiteReadOnlyDSN(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_busy_timeout=5000"
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.Ping"
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// Driver возвращает имя драйвера.
func (s *Storage) Driver() string {
	return s.dialect.driver
}

// TableExists сообщает, есть ли таблица name в базе.
func (s *Storage) TableExists(ctx context.Context, name string) (bool, error) {
	const op = "storage.TableExists"

	var count int
	if err := s.DB.GetContext(ctx, &count, s.DB.Rebind(s.dialect.tableExists), name); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return count > 0, nil
}

// Columns возвращает множество колонок таблицы.
func (s *Storage) Columns(ctx context.Context, table string) (map[string]struct{}, error) {
	const op = "storage.Columns"

	var names []string
	if err := s.DB.SelectContext(ctx, &names, s.DB.Rebind(s.dialect.columns), table); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	columns := make(map[string]struct{}, len(names))
	for _, n := range names {
		columns[strings.ToLower(n)] = struct{}{}
	}
	return columns, nil
}

// ListSubscribers возвращает всех пользователей бота в порядке хранения.
func (s *Storage) ListSubscribers(ctx context.Context) ([]models.SubscriberRow, error) {
	const op = "storage.ListSubscribers"

	rows := []models.SubscriberRow{}
	q, ok, err := s.selectQuery(ctx, tableUsers, models.SubscriberColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return rows, nil
	}
	q.orderBy(s.dialect.usersOrder(q)...)

	if err = s.DB.SelectContext(ctx, &rows, q.String()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// ListRecentPayments возвращает не более limit последних платежей по created_at.
func (s *Storage) ListRecentPayments(ctx context.Context, limit int) ([]models.PaymentRow, error) {
	const op = "storage.ListRecentPayments"

	rows := []models.PaymentRow{}
	q, ok, err := s.selectQuery(ctx, tablePayments, models.PaymentColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return rows, nil
	}
	q.orderBy(paymentsOrder(q)...)

	if err = s.DB.SelectContext(ctx, &rows, s.DB.Rebind(q.String()+" LIMIT ?"), limit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// ListPaidPayments возвращает все платежи со статусом "paid" без учёта регистра.
func (s *Storage) ListPaidPayments(ctx context.Context) ([]models.PaymentRow, error) {
	const op = "storage.ListPaidPayments"

	rows := []models.PaymentRow{}
	q, ok, err := s.selectQuery(ctx, tablePayments, models.PaymentColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return rows, nil
	}
	if _, hasStatus := q.columns["status"]; !hasStatus {
		return rows, nil
	}
	q.where(`LOWER(CAST("status" AS TEXT)) = ?`)
	q.orderBy(paymentsOrder(q)...)

	if err = s.DB.SelectContext(ctx, &rows, s.DB.Rebind(q.String()), models.PaymentStatusPaid); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// ChannelSetting возвращает сырое значение настройки каналов. ok=false, если
// таблицы или строки нет.
func (s *Storage) ChannelSetting(ctx context.Context) (string, bool, error) {
	const op = "storage.ChannelSetting"

	exists, err := s.TableExists(ctx, tableSettings)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return "", false, nil
	}

	var values []sql.NullString
	query := s.DB.Rebind(`SELECT CAST("value" AS TEXT) FROM settings WHERE "key" = ?`)
	if err = s.DB.SelectContext(ctx, &values, query, models.ChannelSettingKey); err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if len(values) == 0 || !values[0].Valid {
		return "", false, nil
	}
	return values[0].String, true, nil
}

func (s *Storage) selectQuery(ctx context.Context, table string, want []string) (*selectBuilder, bool, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil || !exists {
		return nil, false, err
	}
	columns, err := s.Columns(ctx, table)
	if err != nil {
		return nil, false, err
	}
	return newSelect(table, want, columns), true, nil
}

func paymentsOrder(q *selectBuilder) []string {
	var order []string
	for _, c := range []string{"created_at", "id"} {
		if col, ok := q.source(c); ok {
			order = append(order, col+" DESC")
		}
	}
	return order
}
