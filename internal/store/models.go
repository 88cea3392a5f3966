package store

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type UserStatus string

const (
	StatusActive  UserStatus = "active"
	StatusDeleted UserStatus = "deleted"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ImagePending is the image_url of a character whose portrait is still being rendered.
const ImagePending = "PENDING"

type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	Status      UserStatus `json:"status"`
	LoginToken  *string    `json:"-"` // single use, cleared on verification
	TokenExpiry int64      `json:"-"` // epoch seconds
}

type Character struct {
	ID                int64  `json:"id"`
	ImagePrompt       string `json:"image_prompt"`
	ImageURL          string `json:"image_url"`
	GeneratedBy       int64  `json:"generated_by"`
	Name              string `json:"name"`
	PlanetName        string `json:"planet_name"`
	PlanetDescription string `json:"planet_description"`
	PersonalityTraits string `json:"personality_traits"`
	SpeechStyle       string `json:"speech_style"`
	Quirks            string `json:"quirks"`
	HumanRelationship string `json:"human_relationship"`
}

type Thread struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	CharacterID int64     `json:"character_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Message struct {
	ID                 int64       `json:"id"`
	ThreadID           int64       `json:"thread_id"`
	ExternalResponseID *string     `json:"external_response_id,omitempty"` // assistant turns only
	CreatedAt          time.Time   `json:"created_at"`
	Role               MessageRole `json:"role"`
	Content            string      `json:"content"`
}

// UserPatch holds the user fields an update may change. Nil fields are left alone.
type UserPatch struct {
	Username        *string     `json:"username,omitempty"`
	Email           *string     `json:"email,omitempty"`
	Role            *Role       `json:"role,omitempty"`
	Status          *UserStatus `json:"status,omitempty"`
	LoginToken      *string     `json:"-"`
	ClearLoginToken bool        `json:"-"`
	TokenExpiry     *int64      `json:"-"`
}

type CharacterPatch struct {
	ImagePrompt       *string `json:"image_prompt,omitempty"`
	ImageURL          *string `json:"image_url,omitempty"`
	Name              *string `json:"name,omitempty"`
	PlanetName        *string `json:"planet_name,omitempty"`
	PlanetDescription *string `json:"planet_description,omitempty"`
	PersonalityTraits *string `json:"personality_traits,omitempty"`
	SpeechStyle       *string `json:"speech_style,omitempty"`
	Quirks            *string `json:"quirks,omitempty"`
	HumanRelationship *string `json:"human_relationship,omitempty"`
}

// NoPatch is the patch type of append-only entities.
type NoPatch struct{}
