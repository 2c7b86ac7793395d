package store

import (
	"database/sql"
	"fmt"

	"github.com/ashgrove/rota/internal/model"
)

// TenantStore is the tenant directory: which users occupy which property and
// room. Rotation eligibility for assign-to-all tasks comes from here.
type TenantStore struct {
	db DBTX
}

func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

// WithTx rebinds the store onto an open transaction.
func (s *TenantStore) WithTx(tx *sql.Tx) *TenantStore {
	return &TenantStore{db: tx}
}

func scanTenant(scanner interface{ Scan(...any) error }) (*model.TenantProfile, error) {
	var t model.TenantProfile
	var roomID sql.NullInt64

	err := scanner.Scan(&t.ID, &t.UserID, &t.PropertyID, &roomID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if roomID.Valid {
		t.RoomID = &roomID.Int64
	}
	return &t, nil
}

const tenantCols = `id, user_id, property_id, room_id, created_at, updated_at`

func (s *TenantStore) Create(userID, propertyID int64, roomID *int64) (*model.TenantProfile, error) {
	var rID sql.NullInt64
	if roomID != nil {
		rID = sql.NullInt64{Int64: *roomID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO tenant_profiles (user_id, property_id, room_id) VALUES (?, ?, ?)`,
		userID, propertyID, rID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tenant profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TenantStore) GetByID(id int64) (*model.TenantProfile, error) {
	row := s.db.QueryRow(`SELECT `+tenantCols+` FROM tenant_profiles WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant profile: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetByUserID(userID int64) (*model.TenantProfile, error) {
	row := s.db.QueryRow(`SELECT `+tenantCols+` FROM tenant_profiles WHERE user_id = ?`, userID)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant profile by user: %w", err)
	}
	return t, nil
}

func (s *TenantStore) ListByProperty(propertyID int64) ([]model.TenantProfile, error) {
	rows, err := s.db.Query(
		`SELECT `+tenantCols+` FROM tenant_profiles WHERE property_id = ? ORDER BY created_at ASC, id ASC`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenant profiles: %w", err)
	}
	defer rows.Close()
	return collectTenants(rows)
}

// ListByScope returns tenants of a property, narrowed to a room when roomID
// is set, ordered by profile creation time. This order is the derived
// rotation order for assign-to-all tasks.
func (s *TenantStore) ListByScope(propertyID int64, roomID *int64) ([]model.TenantProfile, error) {
	var rows *sql.Rows
	var err error
	if roomID != nil {
		rows, err = s.db.Query(
			`SELECT `+tenantCols+` FROM tenant_profiles WHERE property_id = ? AND room_id = ? ORDER BY created_at ASC, id ASC`,
			propertyID, *roomID,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+tenantCols+` FROM tenant_profiles WHERE property_id = ? ORDER BY created_at ASC, id ASC`,
			propertyID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list tenant profiles by scope: %w", err)
	}
	defer rows.Close()
	return collectTenants(rows)
}

func collectTenants(rows *sql.Rows) ([]model.TenantProfile, error) {
	var tenants []model.TenantProfile
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant profile: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *TenantStore) Update(id, propertyID int64, roomID *int64) (*model.TenantProfile, error) {
	var rID sql.NullInt64
	if roomID != nil {
		rID = sql.NullInt64{Int64: *roomID, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE tenant_profiles SET property_id = ?, room_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		propertyID, rID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update tenant profile: %w", err)
	}
	return s.GetByID(id)
}

func (s *TenantStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tenant_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tenant profile: %w", err)
	}
	return nil
}
