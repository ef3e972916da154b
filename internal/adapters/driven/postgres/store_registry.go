package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StoreRegistry = (*StoreRegistry)(nil)

// ErrNoCipher is returned when credentials must be sealed or opened but the
// registry was built without a cipher.
var ErrNoCipher = errors.New("credential cipher not configured")

// StoreRegistry implements driven.StoreRegistry using PostgreSQL.
// Credentials are stored sealed; a nil cipher only supports stores without them.
type StoreRegistry struct {
	db     *DB
	cipher *CredentialCipher
}

// NewStoreRegistry creates a new StoreRegistry
func NewStoreRegistry(db *DB, cipher *CredentialCipher) *StoreRegistry {
	return &StoreRegistry{db: db, cipher: cipher}
}

// Save creates or updates a store
func (s *StoreRegistry) Save(ctx context.Context, store *domain.Store) error {
	var sealed []byte
	if !store.Credentials.IsEmpty() {
		if s.cipher == nil {
			return ErrNoCipher
		}
		var err error
		sealed, err = s.cipher.Seal(store.ID, store.Credentials)
		if err != nil {
			return fmt.Errorf("seal credentials: %w", err)
		}
	}

	query := `
		INSERT INTO stores (id, name, base_url, credentials, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			base_url = EXCLUDED.base_url,
			credentials = EXCLUDED.credentials,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		store.ID,
		store.Name,
		store.BaseURL,
		sealed,
		store.Enabled,
		store.CreatedAt,
		store.UpdatedAt,
	)
	return err
}

// Get retrieves a store by ID
func (s *StoreRegistry) Get(ctx context.Context, id string) (*domain.Store, error) {
	query := `
		SELECT id, name, base_url, credentials, enabled, created_at, updated_at
		FROM stores
		WHERE id = $1
	`

	store, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// List retrieves all stores ordered by ID
func (s *StoreRegistry) List(ctx context.Context) ([]*domain.Store, error) {
	query := `
		SELECT id, name, base_url, credentials, enabled, created_at, updated_at
		FROM stores
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]*domain.Store, 0)
	for rows.Next() {
		store, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stores, nil
}

// Delete removes a store. Its cached rows are left to Clear.
func (s *StoreRegistry) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *StoreRegistry) scan(row rowScanner) (*domain.Store, error) {
	var store domain.Store
	var sealed []byte

	err := row.Scan(
		&store.ID,
		&store.Name,
		&store.BaseURL,
		&sealed,
		&store.Enabled,
		&store.CreatedAt,
		&store.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sealed) > 0 {
		if s.cipher == nil {
			return nil, ErrNoCipher
		}
		creds, err := s.cipher.Open(store.ID, sealed)
		if err != nil {
			return nil, fmt.Errorf("open credentials of store %s: %w", store.ID, err)
		}
		store.Credentials = creds
	}

	return &store, nil
}
