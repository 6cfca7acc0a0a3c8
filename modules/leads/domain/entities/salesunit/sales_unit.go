package salesunit

import (
	"context"
	"errors"
	"time"
)

var ErrUnitNotFound = errors.New("sales unit not found")

// Unit is an internal sales force that receives leads.
type Unit struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Unit, error)
	List(ctx context.Context, activeOnly bool) ([]*Unit, error)
}
