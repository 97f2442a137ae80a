package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// CustomerRepo stores chat customers keyed by their contact address.
type CustomerRepo struct {
	db *sql.DB
}

// NewCustomerRepo returns a new CustomerRepo bound to the given database.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

const customerColumns = `id, contact_id, name, email, document_ref, verification, created_at, updated_at`

func scanCustomer(s rowScanner) (*model.Customer, error) {
	var (
		c                model.Customer
		name, email, doc sql.NullString
		verification     string
	)
	if err := s.Scan(&c.ID, &c.ContactID, &name, &email, &doc, &verification, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Name, c.Email, c.DocumentRef = name.String, email.String, doc.String
	c.Verification = model.VerificationStatus(verification)
	return &c, nil
}

// GetCustomerByContact returns the customer for a contact id or ErrNotFound.
func (r *CustomerRepo) GetCustomerByContact(ctx context.Context, contactID string) (*model.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE contact_id = ?`, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// EnsureCustomer returns the customer for contactID, creating it on first
// contact.  INSERT IGNORE on the unique contact_id makes concurrent first
// messages converge on one row.
func (r *CustomerRepo) EnsureCustomer(ctx context.Context, contactID, name string) (*model.Customer, error) {
	c, err := r.GetCustomerByContact(ctx, contactID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT IGNORE INTO customers (contact_id, name, verification) VALUES (?, ?, ?)`,
		contactID, sql.NullString{String: name, Valid: name != ""}, string(model.VerificationNone))
	if err != nil {
		return nil, err
	}
	return r.GetCustomerByContact(ctx, contactID)
}

// AttachDocument stores an identity document reference and marks the
// customer's verification as pending review.
func (r *CustomerRepo) AttachDocument(ctx context.Context, customerID uint64, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE customers SET document_ref = ?, verification = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		ref, string(model.VerificationPending), customerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
