package expense

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("expense not found")

// Expense belongs to exactly one user. OwnerID is never read from client
// input.
type Expense struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Input struct {
	Title    string
	Amount   float64
	Category string
	Date     time.Time
}
