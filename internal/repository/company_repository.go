package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jbweber/homelab/ipdesk/internal/domain"
)

// CompanyRepository defines operations for tenant companies
type CompanyRepository interface {
	Create(ctx context.Context, company domain.Company) (domain.Company, error)
	FindByID(ctx context.Context, id int64) (domain.Company, error)
}

// companyRepositoryImpl implements CompanyRepository
type companyRepositoryImpl struct {
	db DBTX
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db DBTX) CompanyRepository {
	return &companyRepositoryImpl{db: db}
}

// Create inserts a company housed in an existing room
func (r *companyRepositoryImpl) Create(ctx context.Context, company domain.Company) (domain.Company, error) {
	if company.Name == "" {
		return domain.Company{}, invalidf("company name is required")
	}
	if company.Owner == "" {
		return domain.Company{}, invalidf("company owner is required")
	}
	if company.RoomID == 0 {
		return domain.Company{}, invalidf("company room is required")
	}

	query := `INSERT INTO companies (name, owner, room_id) VALUES (?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, company.Name, company.Owner, company.RoomID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Company{}, fmt.Errorf("company %s: %w", company.Name, ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return domain.Company{}, invalidf("room %d does not exist", company.RoomID)
		}
		return domain.Company{}, fmt.Errorf("failed to create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Company{}, fmt.Errorf("failed to get company ID: %w", err)
	}

	company.ID = id
	return company, nil
}

// FindByID finds a company by ID
func (r *companyRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Company, error) {
	query := `SELECT id, name, owner, room_id FROM companies WHERE id = ?`

	var c domain.Company
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Owner, &c.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Company{}, fmt.Errorf("company %d: %w", id, ErrNotFound)
		}
		return domain.Company{}, fmt.Errorf("failed to find company: %w", err)
	}

	return c, nil
}
