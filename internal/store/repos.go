package store

import (
	"context"
	"fmt"

	"github.com/astroulette/backend/internal/dbx"
)

// Repos vends the entity tables bound to one connection, either the pool or
// an open transaction.
type Repos struct {
	conn dbx.DBTX
}

func NewRepos(conn dbx.DBTX) Repos {
	return Repos{conn: conn}
}

func (r Repos) Users() *Table[User, UserPatch] {
	return &Table[User, UserPatch]{conn: r.conn, schema: userSchema}
}

func (r Repos) Characters() *Table[Character, CharacterPatch] {
	return &Table[Character, CharacterPatch]{conn: r.conn, schema: characterSchema}
}

func (r Repos) Threads() *Table[Thread, NoPatch] {
	return &Table[Thread, NoPatch]{conn: r.conn, schema: threadSchema}
}

func (r Repos) Messages() *Table[Message, NoPatch] {
	return &Table[Message, NoPatch]{conn: r.conn, schema: messageSchema}
}

// UnmetCharacter returns the lowest-id character the user has no thread with.
// It fails with ErrRecordNotFound when the user has met every character.
func (r Repos) UnmetCharacter(ctx context.Context, userID int64) (*Character, error) {
	t := r.Characters()
	query := fmt.Sprintf(`SELECT %s FROM characters
		WHERE id NOT IN (SELECT character_id FROM threads WHERE user_id = $1)
		ORDER BY id LIMIT 1`, t.selectColumns())
	return t.queryOne(ctx, "read", query, userID)
}

// LastAssistantMessage returns the newest assistant turn of a thread, or
// ErrRecordNotFound when the thread has none.
func (r Repos) LastAssistantMessage(ctx context.Context, threadID int64) (*Message, error) {
	t := r.Messages()
	query := fmt.Sprintf(`SELECT %s FROM messages
		WHERE thread_id = $1 AND role = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`, t.selectColumns())
	return t.queryOne(ctx, "read", query, threadID, string(MessageRoleAssistant))
}

// ThreadMessages returns a thread's messages oldest first.
func (r Repos) ThreadMessages(ctx context.Context, threadID int64) ([]Message, error) {
	t := r.Messages()
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE thread_id = $1 ORDER BY created_at, id`, t.selectColumns())
	return t.query(ctx, "read", query, threadID)
}

func (r Repos) UserByEmail(ctx context.Context, email string) (*User, error) {
	t := r.Users()
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, t.selectColumns())
	return t.queryOne(ctx, "read", query, email)
}

func (r Repos) UserByLoginToken(ctx context.Context, token string) (*User, error) {
	t := r.Users()
	query := fmt.Sprintf(`SELECT %s FROM users WHERE login_token = $1`, t.selectColumns())
	return t.queryOne(ctx, "read", query, token)
}
