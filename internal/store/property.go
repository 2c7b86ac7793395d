package store

import (
	"database/sql"
	"fmt"

	"github.com/ashgrove/rota/internal/model"
)

type PropertyStore struct {
	db DBTX
}

func NewPropertyStore(db *sql.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

func scanProperty(scanner interface{ Scan(...any) error }) (*model.Property, error) {
	var p model.Property
	err := scanner.Scan(&p.ID, &p.Name, &p.Address, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const propertyCols = `id, name, address, description, created_by, created_at, updated_at`

func (s *PropertyStore) Create(name, address, description string, createdBy int64) (*model.Property, error) {
	result, err := s.db.Exec(
		`INSERT INTO properties (name, address, description, created_by) VALUES (?, ?, ?, ?)`,
		name, address, description, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert property: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PropertyStore) GetByID(id int64) (*model.Property, error) {
	row := s.db.QueryRow(`SELECT `+propertyCols+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

func (s *PropertyStore) List() ([]model.Property, error) {
	rows, err := s.db.Query(`SELECT ` + propertyCols + ` FROM properties ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var properties []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}

func (s *PropertyStore) Update(id int64, name, address, description string) (*model.Property, error) {
	_, err := s.db.Exec(
		`UPDATE properties SET name = ?, address = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, address, description, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update property: %w", err)
	}
	return s.GetByID(id)
}

func (s *PropertyStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM properties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return nil
}

// --- Room methods ---

func scanRoom(scanner interface{ Scan(...any) error }) (*model.Room, error) {
	var r model.Room
	err := scanner.Scan(&r.ID, &r.PropertyID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const roomCols = `id, property_id, name, description, created_at, updated_at`

func (s *PropertyStore) CreateRoom(propertyID int64, name, description string) (*model.Room, error) {
	result, err := s.db.Exec(
		`INSERT INTO rooms (property_id, name, description) VALUES (?, ?, ?)`,
		propertyID, name, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRoomByID(id)
}

func (s *PropertyStore) GetRoomByID(id int64) (*model.Room, error) {
	row := s.db.QueryRow(`SELECT `+roomCols+` FROM rooms WHERE id = ?`, id)
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

func (s *PropertyStore) ListRooms(propertyID int64) ([]model.Room, error) {
	rows, err := s.db.Query(
		`SELECT `+roomCols+` FROM rooms WHERE property_id = ? ORDER BY name ASC`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

func (s *PropertyStore) UpdateRoom(id int64, name, description string) (*model.Room, error) {
	_, err := s.db.Exec(
		`UPDATE rooms SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, description, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	return s.GetRoomByID(id)
}

func (s *PropertyStore) DeleteRoom(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
