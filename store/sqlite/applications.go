package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// =============================================================================
// LOAN APPLICATIONS (application.Repository)
// =============================================================================

const applicationColumns = `id, application_id,
	full_name, email, phone, gender, date_of_birth, marital_status, religion, dependents,
	state, lga, home_address, office_address, id_card_type, id_card_number, position, group_name,
	loan_purpose, loan_amount, interest_rate, duration_months, repayment_rate,
	total_payable, monthly_payment, payment_amount,
	bank_name, account_number, account_name, bvn,
	guarantor_name, guarantor_phone, guarantor_email, guarantor_address,
	guarantor_id_type, guarantor_id_number,
	status, admin_notes, disbursed_at, created_at, updated_at`

const dateLayout = "2006-01-02"

func (s *Store) ApplicationIDExists(ctx context.Context, applicationID string) (bool, error) {
	c, done := s.read()
	defer done()
	return c.ApplicationIDExists(ctx, applicationID)
}

func (s *Store) InsertApplication(ctx context.Context, app *application.LoanApplication) error {
	c, done := s.write()
	defer done()
	return c.InsertApplication(ctx, app)
}

func (s *Store) GetApplication(ctx context.Context, applicationID string) (*application.LoanApplication, error) {
	c, done := s.read()
	defer done()
	return c.GetApplication(ctx, applicationID)
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, applicationID string, from, to application.Status, notes string, at time.Time) error {
	c, done := s.write()
	defer done()
	return c.UpdateApplicationStatus(ctx, applicationID, from, to, notes, at)
}

func (s *Store) ListApplications(ctx context.Context, f application.Filter, offset, limit int) ([]application.LoanApplication, int, error) {
	c, done := s.read()
	defer done()
	return c.ListApplications(ctx, f, offset, limit)
}

func (s *Store) CountApplicationsByStatus(ctx context.Context) (map[application.Status]int, error) {
	c, done := s.read()
	defer done()
	return c.CountApplicationsByStatus(ctx)
}

func (c *conn) ApplicationIDExists(ctx context.Context, applicationID string) (bool, error) {
	return exists(ctx, c.q, "SELECT COUNT(*) FROM loan_applications WHERE application_id = ?", applicationID)
}

func (c *conn) InsertApplication(ctx context.Context, app *application.LoanApplication) error {
	query := `
		INSERT INTO loan_applications
		(application_id,
		 full_name, email, phone, gender, date_of_birth, marital_status, religion, dependents,
		 state, lga, home_address, office_address, id_card_type, id_card_number, position, group_name,
		 loan_purpose, loan_amount, interest_rate, duration_months, repayment_rate,
		 total_payable, monthly_payment, payment_amount,
		 bank_name, account_number, account_name, bvn,
		 guarantor_name, guarantor_phone, guarantor_email, guarantor_address,
		 guarantor_id_type, guarantor_id_number,
		 status, admin_notes, disbursed_at, created_at, updated_at)
		VALUES (?,
		        ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?,
		        ?, ?, ?,
		        ?, ?, ?, ?,
		        ?, ?, ?, ?,
		        ?, ?,
		        ?, ?, ?, ?, ?)
	`

	res, err := c.q.ExecContext(ctx, query,
		app.ApplicationID,
		app.FullName, app.Email, app.Phone, app.Gender, app.DateOfBirth.Format(dateLayout),
		app.MaritalStatus, app.Religion, app.Dependents,
		app.State, app.LGA, app.HomeAddress, app.OfficeAddress,
		app.IDCardType, app.IDCardNumber, app.Position, app.GroupName,
		app.LoanPurpose, money(app.LoanAmount), app.InterestRate.String(),
		app.DurationMonths, string(app.RepaymentRate),
		money(app.TotalPayable), money(app.MonthlyPayment), money(app.PaymentAmount),
		app.BankName, app.AccountNumber, app.AccountName, app.BVN,
		app.GuarantorName, app.GuarantorPhone, app.GuarantorEmail, app.GuarantorAddress,
		app.GuarantorIDType, app.GuarantorIDNumber,
		string(app.Status), app.AdminNotes, nullTime(app.DisbursedAt),
		formatTime(app.CreatedAt), formatTime(app.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: application %s", ledger.ErrConflict, app.ApplicationID)
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read application id: %w", err)
	}
	app.ID = id
	return nil
}

func (c *conn) GetApplication(ctx context.Context, applicationID string) (*application.LoanApplication, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM loan_applications WHERE application_id = ?",
		applicationID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, application.ErrApplicationNotFound
	}
	return app, err
}

// UpdateApplicationStatus is a compare-and-set on status. A row that moved
// on since it was read yields ErrConflict.
func (c *conn) UpdateApplicationStatus(ctx context.Context, applicationID string, from, to application.Status, notes string, at time.Time) error {
	var disbursedAt sql.NullString
	if to == application.StatusDisbursed {
		disbursedAt = nullTime(at)
	}

	res, err := c.q.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = ?,
		    admin_notes = CASE WHEN ? = '' THEN admin_notes ELSE ? END,
		    disbursed_at = COALESCE(?, disbursed_at),
		    updated_at = ?
		WHERE application_id = ? AND status = ?`,
		string(to), notes, notes, disbursedAt, formatTime(at),
		applicationID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	found, err := c.ApplicationIDExists(ctx, applicationID)
	if err != nil {
		return err
	}
	if !found {
		return application.ErrApplicationNotFound
	}
	return fmt.Errorf("%w: application %s is no longer %s", ledger.ErrConflict, applicationID, from)
}

func (c *conn) ListApplications(ctx context.Context, f application.Filter, offset, limit int) ([]application.LoanApplication, int, error) {
	where := `
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR full_name LIKE ? OR phone LIKE ? OR email LIKE ? OR application_id LIKE ?)`
	search := like(f.Search)
	args := []any{string(f.Status), string(f.Status), f.Search, search, search, search, search}

	var total int
	if err := c.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM loan_applications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	query, args := page(
		"SELECT "+applicationColumns+" FROM loan_applications"+where+" ORDER BY created_at DESC, id DESC",
		args, offset, limit)
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []application.LoanApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, *app)
	}
	return apps, total, rows.Err()
}

func (c *conn) CountApplicationsByStatus(ctx context.Context) (map[application.Status]int, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT status, COUNT(*) FROM loan_applications GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[application.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[application.Status(status)] = n
	}
	return counts, rows.Err()
}

func scanApplication(sc scanner) (*application.LoanApplication, error) {
	var (
		app           application.LoanApplication
		dob           string
		repaymentRate string
		status        string
		disbursedAt   sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := sc.Scan(
		&app.ID, &app.ApplicationID,
		&app.FullName, &app.Email, &app.Phone, &app.Gender, &dob, &app.MaritalStatus, &app.Religion, &app.Dependents,
		&app.State, &app.LGA, &app.HomeAddress, &app.OfficeAddress, &app.IDCardType, &app.IDCardNumber, &app.Position, &app.GroupName,
		&app.LoanPurpose, &app.LoanAmount, &app.InterestRate, &app.DurationMonths, &repaymentRate,
		&app.TotalPayable, &app.MonthlyPayment, &app.PaymentAmount,
		&app.BankName, &app.AccountNumber, &app.AccountName, &app.BVN,
		&app.GuarantorName, &app.GuarantorPhone, &app.GuarantorEmail, &app.GuarantorAddress,
		&app.GuarantorIDType, &app.GuarantorIDNumber,
		&status, &app.AdminNotes, &disbursedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app.RepaymentRate = loancalc.Frequency(repaymentRate)
	app.Status = application.Status(status)
	if app.DateOfBirth, err = time.Parse(dateLayout, dob); err != nil {
		return nil, fmt.Errorf("bad date of birth %q: %w", dob, err)
	}
	if disbursedAt.Valid {
		if app.DisbursedAt, err = parseTime(disbursedAt.String); err != nil {
			return nil, err
		}
	}
	if app.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if app.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &app, nil
}
