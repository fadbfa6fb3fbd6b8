package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/plaenen/corebank/pkg/domain"
)

type customerRepository struct {
	store *Store
}

const customerColumns = `id, first_name, last_name, email, phone, address,
	date_of_birth, bvn, credit_score, email_opt_in, date_created, active,
	deleted_at, deleted_by`

func (r *customerRepository) FindByID(ctx context.Context, id domain.CustomerID) (*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = ? AND deleted_at IS NULL`, id.String())
	return scanCustomer(row)
}

func (r *customerRepository) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE email = ? AND deleted_at IS NULL`, strings.ToLower(email))
	return scanCustomer(row)
}

func (r *customerRepository) ExistsByID(ctx context.Context, id domain.CustomerID) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM customers
		WHERE id = ? AND deleted_at IS NULL`, id.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check customer id: %w", err)
	}
	return count > 0, nil
}

func (r *customerRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM customers
		WHERE email = ? AND deleted_at IS NULL`, strings.ToLower(email)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check customer email: %w", err)
	}
	return count > 0, nil
}

func (r *customerRepository) FindAll(ctx context.Context) ([]*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE deleted_at IS NULL
		ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *customerRepository) Add(ctx context.Context, customer *domain.Customer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return insertCustomer(ctx, r.store.db, customer)
}

func (r *customerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return updateCustomer(ctx, r.store.db, customer)
}

// insertCustomer and updateCustomer are shared with the unit of work, which
// passes its own transaction as the execer.

func insertCustomer(ctx context.Context, ex execer, customer *domain.Customer) error {
	deletedAt, deletedBy := deletionColumns(customer.Deleted())
	_, err := ex.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID().String(),
		customer.FirstName(),
		customer.LastName(),
		customer.Email(),
		customer.Phone(),
		customer.Address(),
		customer.DateOfBirth().Unix(),
		customer.BVN(),
		customer.CreditScore(),
		customer.EmailOptIn(),
		customer.DateCreated().Unix(),
		customer.IsActive(),
		deletedAt,
		deletedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s is already registered", domain.ErrValidation, customer.Email())
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func updateCustomer(ctx context.Context, ex execer, customer *domain.Customer) error {
	deletedAt, deletedBy := deletionColumns(customer.Deleted())
	res, err := ex.ExecContext(ctx, `
		UPDATE customers
		SET first_name = ?, last_name = ?, email = ?, phone = ?, address = ?,
		    date_of_birth = ?, bvn = ?, credit_score = ?, email_opt_in = ?,
		    active = ?, deleted_at = ?, deleted_by = ?
		WHERE id = ?`,
		customer.FirstName(),
		customer.LastName(),
		customer.Email(),
		customer.Phone(),
		customer.Address(),
		customer.DateOfBirth().Unix(),
		customer.BVN(),
		customer.CreditScore(),
		customer.EmailOptIn(),
		customer.IsActive(),
		deletedAt,
		deletedBy,
		customer.ID().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: customer %s", domain.ErrNotFound, customer.ID())
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var (
		rec         domain.CustomerRecord
		id          string
		dateOfBirth int64
		dateCreated int64
		deletedAt   sql.NullInt64
		deletedBy   sql.NullString
	)
	err := row.Scan(
		&id,
		&rec.FirstName,
		&rec.LastName,
		&rec.Email,
		&rec.Phone,
		&rec.Address,
		&dateOfBirth,
		&rec.BVN,
		&rec.CreditScore,
		&rec.EmailOptIn,
		&dateCreated,
		&rec.Active,
		&deletedAt,
		&deletedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	rec.ID = domain.CustomerID(id)
	rec.DateOfBirth = fromUnix(dateOfBirth)
	rec.DateCreated = fromUnix(dateCreated)
	rec.Deleted = scanDeletion(deletedAt, deletedBy)
	return domain.RehydrateCustomer(rec), nil
}

// isUniqueViolation matches the driver's unique constraint error text.
// modernc.org/sqlite exposes constraint failures only via the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
