package core

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type GroupStudyRepository struct {
	db *sqlx.DB
}

func NewGroupStudyRepository(db *sqlx.DB) *GroupStudyRepository {
	return &GroupStudyRepository{
		db: db,
	}
}

func (r *GroupStudyRepository) Find(ctx context.Context, groupID string) (*GroupStudy, error) {
	gs := &GroupStudy{}

	err := r.db.GetContext(ctx, gs, `SELECT * FROM group_studies WHERE id = $1 LIMIT 1`, groupID)
	if err != nil {
		return nil, err
	}

	return gs, nil
}

func (r *GroupStudyRepository) FindCreator(ctx context.Context, groupID string) (string, error) {
	var creatorID string

	err := r.db.GetContext(ctx, &creatorID,
		`SELECT creator_id FROM group_studies WHERE id = $1 LIMIT 1`, groupID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	return creatorID, nil
}
