package expense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"expense-tracker/internal/db"
)

// Store is what the handlers need; Repository is the Postgres version.
type Store interface {
	List(ctx context.Context, ownerID string) ([]Expense, error)
	Get(ctx context.Context, ownerID, id string) (Expense, error)
	Create(ctx context.Context, ownerID string, input Input) (Expense, error)
	Update(ctx context.Context, ownerID, id string, input Input) (Expense, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type Repository struct {
	db db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{db: pool}
}

const expenseColumns = `id::text, owner_id::text, title, amount::float8, category, spent_on, created_at, updated_at`

func (r *Repository) List(ctx context.Context, ownerID string) ([]Expense, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE owner_id = $1
		ORDER BY spent_on DESC, created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	return expenses, nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (Expense, error) {
	e, err := scanExpense(r.db.QueryRow(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, fmt.Errorf("query expense: %w", err)
	}

	return e, nil
}

func (r *Repository) Create(ctx context.Context, ownerID string, input Input) (Expense, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Expense{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	e := Expense{
		ID:        id.String(),
		OwnerID:   ownerID,
		Title:     input.Title,
		Amount:    input.Amount,
		Category:  input.Category,
		Date:      input.Date,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO expenses (id, owner_id, title, amount, category, spent_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, e.ID, e.OwnerID, e.Title, e.Amount, e.Category, e.Date, now)
	if err != nil {
		return Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	return e, nil
}

func (r *Repository) Update(ctx context.Context, ownerID, id string, input Input) (Expense, error) {
	e, err := scanExpense(r.db.QueryRow(ctx, `
		UPDATE expenses
		SET title = $3, amount = $4, category = $5, spent_on = $6, updated_at = $7
		WHERE id = $1 AND owner_id = $2
		RETURNING `+expenseColumns,
		id, ownerID, input.Title, input.Amount, input.Category, input.Date, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, fmt.Errorf("update expense: %w", err)
	}

	return e, nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Amount, &e.Category, &e.Date, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
