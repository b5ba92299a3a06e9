package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// StaffAccount is a platform staff user.
type StaffAccount struct {
	StaffKey     int64
	StaffID      string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// GetStaffByEmail looks up a staff account for login.
func (s *Store) GetStaffByEmail(ctx context.Context, email string) (StaffAccount, error) {
	row := s.db.QueryRowContext(ctx, selectStaff+" WHERE email = ?", email)
	return scanStaff(row)
}

// GetStaffByID looks up a staff account by its public identifier.
func (s *Store) GetStaffByID(ctx context.Context, staffID string) (StaffAccount, error) {
	row := s.db.QueryRowContext(ctx, selectStaff+" WHERE staff_id = ?", staffID)
	return scanStaff(row)
}

// ListAccessibleSiteKeys returns the site keys of every active widget in
// workspaces where the staff member holds an active membership. This is the
// RBAC surface the fanout router consumes to compute staff topic
// subscriptions.
func (s *Store) ListAccessibleSiteKeys(ctx context.Context, staffID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.site_key
		FROM widgets w
		INNER JOIN memberships m ON m.workspace_key = w.workspace_key AND m.status = 1
		INNER JOIN staff_accounts a ON a.staff_key = m.staff_key
		WHERE a.staff_id = ? AND w.status = 1`,
		staffID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var siteKeys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		siteKeys = append(siteKeys, key)
	}
	return siteKeys, rows.Err()
}

const selectStaff = `
	SELECT staff_key, staff_id, email, name, password_hash, created_at
	FROM staff_accounts`

func scanStaff(row rowScanner) (StaffAccount, error) {
	var acct StaffAccount
	err := row.Scan(&acct.StaffKey, &acct.StaffID, &acct.Email, &acct.Name, &acct.PasswordHash, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StaffAccount{}, ErrNotFound
	}
	if err != nil {
		return StaffAccount{}, err
	}
	return acct, nil
}
