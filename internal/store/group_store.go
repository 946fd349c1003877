package store

import (
	"context"

	"github.com/lib/pq"
)

const (
	GroupMemberActive = "ACTIVE"
	GroupMemberLeft   = "LEFT"
)

// GroupStore persists groups and their memberships. Ledger parties in the
// group ledger are membership ids, not user ids, because balances are
// group-local.
type GroupStore struct {
	db DB
}

type Group struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	CreatedBy string `db:"created_by"`
	CreatedAt any    `db:"created_at"`
}

type GroupMember struct {
	ID      string `db:"id"`
	GroupID string `db:"group_id"`
	UserID  string `db:"user_id"`
	Status  string `db:"status"`
}

func NewGroupStore(db DB) *GroupStore {
	return &GroupStore{db: db}
}

func (s *GroupStore) Create(ctx context.Context, tx Execer, id, name, createdBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, created_by)
		VALUES ($1, $2, $3)
	`, id, name, createdBy)
	return err
}

func (s *GroupStore) GetByID(ctx context.Context, groupID string) (Group, error) {
	var row Group
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, created_by, created_at
		FROM groups
		WHERE id = $1
	`, groupID)
	if err != nil {
		return Group{}, err
	}
	return row, nil
}

func (s *GroupStore) AddMember(ctx context.Context, tx Execer, id, groupID, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (id, group_id, user_id, status)
		VALUES ($1, $2, $3, $4)
	`, id, groupID, userID, GroupMemberActive)
	return mapUniqueViolation(err)
}

func (s *GroupStore) ListMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	var rows []GroupMember
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, group_id, user_id, status
		FROM group_members
		WHERE group_id = $1
		ORDER BY id
	`, groupID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountActiveMembers reports how many of the given membership ids are
// active members of the group; callers compare against the requested
// count to reject outsiders. It runs on the caller's transaction so the
// membership set cannot change between the check and the commit.
func (s *GroupStore) CountActiveMembers(ctx context.Context, q Getter, groupID string, memberIDs []string) (int, error) {
	var count int
	err := q.GetContext(ctx, &count, `
		SELECT COUNT(DISTINCT id)
		FROM group_members
		WHERE group_id = $1 AND status = $2 AND id = ANY($3)
	`, groupID, GroupMemberActive, pq.Array(memberIDs))
	return count, err
}
