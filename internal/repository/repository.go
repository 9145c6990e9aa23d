package repository

import (
	"errors"
	"fmt"

	"github.com/fjod/go_market/internal/domain"
	"github.com/jmoiron/sqlx"
)

var (
	ErrOrderNotFound        = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrShopNotFound         = fmt.Errorf("shop %w", domain.ErrNotFound)
	ErrAddressNotFound      = fmt.Errorf("address %w", domain.ErrNotFound)
	ErrVoucherNotFound      = fmt.Errorf("voucher %w", domain.ErrNotFound)
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrVoucherExhausted     = errors.New("voucher usage limit reached")
	ErrStaleOrder           = errors.New("order status changed concurrently")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Credentials struct {
	Driver            string
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SQLitePath        string
	MigrationsDirPath string
}

type Repository struct {
	db     *sqlx.DB
	driver string
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, driver: db.DriverName()}
}

func (r *Repository) DB() *sqlx.DB {
	return r.db
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(n, start int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("$%d", start+i)
	}
	return s
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
