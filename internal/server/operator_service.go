package server

import (
	"context"
	"fmt"

	"github.com/jonathan/closing-engine/internal/config"
	"github.com/jonathan/closing-engine/internal/db"
)

// OperatorStore reads and writes operator accounts.
type OperatorStore interface {
	GetOperatorByLogin(ctx context.Context, login string) (*db.Operator, error)
	CreateOperator(ctx context.Context, login, name, passwordHash string, canOverride bool) (*db.Operator, error)
}

// OperatorService provides business logic for operator authentication
type OperatorService struct {
	store          OperatorStore
	passwordConfig *config.PasswordConfig
}

// NewOperatorService creates a new OperatorService with the given dependencies
func NewOperatorService(store OperatorStore, passwordConfig *config.PasswordConfig) *OperatorService {
	return &OperatorService{
		store:          store,
		passwordConfig: passwordConfig,
	}
}

// Create registers a new operator with a hashed password.
func (s *OperatorService) Create(ctx context.Context, login, name, password string, canOverride bool) (*db.Operator, error) {
	hash, err := s.passwordConfig.HashPassword(password)
	if err != nil {
		return nil, err
	}
	op, err := s.store.CreateOperator(ctx, login, name, hash, canOverride)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}
	return op, nil
}

// Login authenticates an operator and returns the account.
func (s *OperatorService) Login(ctx context.Context, login, password string) (*db.Operator, error) {
	op, err := s.store.GetOperatorByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}

	// Security: Always return generic error if operator not found or password wrong
	if op == nil || !op.Active {
		return nil, &ErrInvalidCredentials{}
	}
	if !s.passwordConfig.VerifyPassword(password, op.PasswordHash) {
		return nil, &ErrInvalidCredentials{}
	}
	return op, nil
}
