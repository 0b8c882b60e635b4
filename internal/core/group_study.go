package core

import (
	"context"
	"time"
)

// GroupStudy is the externally owned record a live study room is scoped to.
// The CRUD side of the application owns this table; we only read it.
type GroupStudy struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	CreatorID string    `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreatorFinder resolves the user allowed to host a room for a group study.
// An empty user id with a nil error means the record has no creator.
type CreatorFinder interface {
	FindCreator(ctx context.Context, groupID string) (string, error)
}
