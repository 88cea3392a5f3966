package store

import (
	"database/sql"
	"time"
)

var userSchema = schema[User, UserPatch]{
	table:   "users",
	columns: []string{"username", "email", "role", "status", "login_token", "token_expiry"},
	scan: func(row scanner) (*User, error) {
		var (
			u     User
			token sql.NullString
		)
		if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Status, &token, &u.TokenExpiry); err != nil {
			return nil, err
		}
		if token.Valid {
			u.LoginToken = &token.String
		}
		return &u, nil
	},
	values: func(u *User) []any {
		if u.Role == "" {
			u.Role = RoleUser
		}
		if u.Status == "" {
			u.Status = StatusActive
		}
		return []any{u.Username, u.Email, string(u.Role), string(u.Status), u.LoginToken, u.TokenExpiry}
	},
	id: func(u *User) *int64 { return &u.ID },
	apply: func(u *User, p UserPatch) {
		if p.Username != nil {
			u.Username = *p.Username
		}
		if p.Email != nil {
			u.Email = *p.Email
		}
		if p.Role != nil {
			u.Role = *p.Role
		}
		if p.Status != nil {
			u.Status = *p.Status
		}
		if p.LoginToken != nil {
			u.LoginToken = p.LoginToken
		}
		if p.ClearLoginToken {
			u.LoginToken = nil
		}
		if p.TokenExpiry != nil {
			u.TokenExpiry = *p.TokenExpiry
		}
	},
}

var characterSchema = schema[Character, CharacterPatch]{
	table: "characters",
	columns: []string{
		"image_prompt", "image_url", "generated_by", "name", "planet_name", "planet_description",
		"personality_traits", "speech_style", "quirks", "human_relationship",
	},
	scan: func(row scanner) (*Character, error) {
		var c Character
		err := row.Scan(&c.ID, &c.ImagePrompt, &c.ImageURL, &c.GeneratedBy, &c.Name, &c.PlanetName,
			&c.PlanetDescription, &c.PersonalityTraits, &c.SpeechStyle, &c.Quirks, &c.HumanRelationship)
		if err != nil {
			return nil, err
		}
		return &c, nil
	},
	values: func(c *Character) []any {
		if c.ImageURL == "" {
			c.ImageURL = ImagePending
		}
		return []any{c.ImagePrompt, c.ImageURL, c.GeneratedBy, c.Name, c.PlanetName,
			c.PlanetDescription, c.PersonalityTraits, c.SpeechStyle, c.Quirks, c.HumanRelationship}
	},
	id: func(c *Character) *int64 { return &c.ID },
	apply: func(c *Character, p CharacterPatch) {
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = *v
			}
		}
		set(&c.ImagePrompt, p.ImagePrompt)
		set(&c.ImageURL, p.ImageURL)
		set(&c.Name, p.Name)
		set(&c.PlanetName, p.PlanetName)
		set(&c.PlanetDescription, p.PlanetDescription)
		set(&c.PersonalityTraits, p.PersonalityTraits)
		set(&c.SpeechStyle, p.SpeechStyle)
		set(&c.Quirks, p.Quirks)
		set(&c.HumanRelationship, p.HumanRelationship)
	},
	cascade: []string{
		"DELETE FROM messages WHERE thread_id IN (SELECT id FROM threads WHERE character_id = $1)",
		"DELETE FROM threads WHERE character_id = $1",
	},
}

var threadSchema = schema[Thread, NoPatch]{
	table:   "threads",
	columns: []string{"user_id", "character_id", "created_at"},
	scan: func(row scanner) (*Thread, error) {
		var (
			t       Thread
			created int64
		)
		if err := row.Scan(&t.ID, &t.UserID, &t.CharacterID, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = fromUnixNano(created)
		return &t, nil
	},
	values: func(t *Thread) []any {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now()
		}
		return []any{t.UserID, t.CharacterID, t.CreatedAt.UnixNano()}
	},
	id:      func(t *Thread) *int64 { return &t.ID },
	apply:   func(*Thread, NoPatch) {},
	cascade: []string{"DELETE FROM messages WHERE thread_id = $1"},
}

var messageSchema = schema[Message, NoPatch]{
	table:   "messages",
	columns: []string{"thread_id", "external_response_id", "created_at", "role", "content"},
	scan: func(row scanner) (*Message, error) {
		var (
			m       Message
			extID   sql.NullString
			created int64
		)
		if err := row.Scan(&m.ID, &m.ThreadID, &extID, &created, &m.Role, &m.Content); err != nil {
			return nil, err
		}
		if extID.Valid {
			m.ExternalResponseID = &extID.String
		}
		m.CreatedAt = fromUnixNano(created)
		return &m, nil
	},
	values: func(m *Message) []any {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
		}
		return []any{m.ThreadID, m.ExternalResponseID, m.CreatedAt.UnixNano(), string(m.Role), m.Content}
	},
	id:    func(m *Message) *int64 { return &m.ID },
	apply: func(*Message, NoPatch) {},
}

// now is truncated to microseconds so values survive a round trip through
// drivers that do not keep nanoseconds.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
