package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Operator represents a row in the operators table. Operators are the humans
// (or service accounts) authorized to enqueue, approve and reject actions.
type Operator struct {
	ID          string
	Name        string
	TokenHash   string
	TokenPrefix string
	Role        string // "admin" or "reviewer"
	CreatedAt   time.Time
}

// GenerateToken creates a new opk_ operator token with its bcrypt hash and
// prefix. Returns (fullToken, hash, prefix, error). The full token is shown
// to the caller once.
func GenerateToken() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateToken: %w", err)
	}
	fullToken := "opk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullToken), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateToken: %w", err)
	}

	prefix := fullToken[:8] // "opk_abcd"
	return fullToken, string(hashBytes), prefix, nil
}

// CreateOperator inserts a new operator.
// Returns the operator and the plaintext token (shown once).
func (s *Store) CreateOperator(ctx context.Context, name, role string) (*Operator, string, error) {
	fullToken, tokenHash, tokenPrefix, err := GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("CreateOperator: %w", err)
	}

	var op Operator
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO operators (name, token_hash, token_prefix, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, token_hash, token_prefix, role, created_at`,
		name, tokenHash, tokenPrefix, role,
	).Scan(&op.ID, &op.Name, &op.TokenHash, &op.TokenPrefix, &op.Role, &op.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateOperator: %w", err)
	}

	return &op, fullToken, nil
}

// LookupByPrefix finds an operator by token prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
// Returns nil if no operator matches.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Operator, error) {
	var op Operator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, token_hash, token_prefix, role, created_at
		FROM operators WHERE token_prefix = $1`, prefix,
	).Scan(&op.ID, &op.Name, &op.TokenHash, &op.TokenPrefix, &op.Role, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &op, nil
}
