package repository

import (
	"context"

	"remindbot/internal/database"
	"remindbot/internal/models"
)

type ResponseRepository struct {
	db *database.DB
}

func NewResponseRepository(db *database.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Create appends a response row. Responses are immutable; multiple rows
// per event are allowed and the latest one governs.
func (r *ResponseRepository) Create(ctx context.Context, response *models.Response) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO responses (event_id, user_id, response, responded_at_utc)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		response.EventID, response.UserID, response.Response, response.RespondedAt.UTC(),
	).Scan(&response.ID)
}
