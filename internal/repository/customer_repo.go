package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/saccohub/settlement/internal/domain"
)

type CustomerRepo struct {
	db DBTX
}

func NewCustomerRepo(db DBTX) *CustomerRepo {
	return &CustomerRepo{db: db}
}

func (r *CustomerRepo) Insert(ctx context.Context, c *domain.Customer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO customers (id, name, phone_number, created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, c.PhoneNumber, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *CustomerRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&count)
	return count, err
}

func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	return scanCustomer(r.db.QueryRowContext(ctx,
		"SELECT id, name, phone_number, created_at FROM customers WHERE id = ?", id))
}

func (r *CustomerRepo) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return scanCustomer(r.db.QueryRowContext(ctx,
		"SELECT id, name, phone_number, created_at FROM customers WHERE phone_number = ?", phone))
}

func scanCustomer(s scanner) (*domain.Customer, error) {
	var c domain.Customer
	var createdAt string
	err := s.Scan(&c.ID, &c.Name, &c.PhoneNumber, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}
