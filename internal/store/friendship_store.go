package store

import "context"

const (
	FriendshipActive   = "ACTIVE"
	FriendshipArchived = "ARCHIVED"
	FriendshipBlocked  = "BLOCKED"
)

// FriendshipStore persists friendships. Each row carries the pair's single
// scalar balance; the friend1/friend2 slots are fixed at creation so the
// stored sign keeps its meaning for the life of the pair.
type FriendshipStore struct {
	db DB
}

type Friendship struct {
	ID        string `db:"id"`
	Friend1ID string `db:"friend1_id"`
	Friend2ID string `db:"friend2_id"`
	Status    string `db:"status"`
	Balance   int64  `db:"balance_amount"`
	CreatedAt any    `db:"created_at"`
}

func NewFriendshipStore(db DB) *FriendshipStore {
	return &FriendshipStore{db: db}
}

func (s *FriendshipStore) Create(ctx context.Context, tx Execer, id, friend1ID, friend2ID string) error {
	query := `
		INSERT INTO friendships (id, friend1_id, friend2_id, status, balance_amount)
		VALUES ($1, $2, $3, $4, 0)
	`
	_, err := tx.ExecContext(ctx, query, id, friend1ID, friend2ID, FriendshipActive)
	return mapUniqueViolation(err)
}

func (s *FriendshipStore) GetByID(ctx context.Context, friendshipID string) (Friendship, error) {
	var row Friendship
	err := s.db.GetContext(ctx, &row, `
		SELECT id, friend1_id, friend2_id, status, balance_amount, created_at
		FROM friendships
		WHERE id = $1
	`, friendshipID)
	if err != nil {
		return Friendship{}, err
	}
	return row, nil
}

func (s *FriendshipStore) GetForUpdate(ctx context.Context, tx Getter, friendshipID string) (Friendship, error) {
	var row Friendship
	err := tx.GetContext(ctx, &row, `
		SELECT id, friend1_id, friend2_id, status, balance_amount
		FROM friendships
		WHERE id = $1
		FOR UPDATE
	`, friendshipID)
	if err != nil {
		return Friendship{}, err
	}
	return row, nil
}

func (s *FriendshipStore) UpdateBalance(ctx context.Context, tx Execer, friendshipID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE friendships
		SET balance_amount = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, friendshipID)
	return err
}

func (s *FriendshipStore) SetStatus(ctx context.Context, tx Execer, friendshipID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE friendships
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, friendshipID)
	return err
}

func (s *FriendshipStore) ListByUser(ctx context.Context, userID string) ([]Friendship, error) {
	var rows []Friendship
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, friend1_id, friend2_id, status, balance_amount, created_at
		FROM friendships
		WHERE friend1_id = $1 OR friend2_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
