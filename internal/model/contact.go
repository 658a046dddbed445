package model

import (
	"strings"
	"time"
)

// Contact is a user profile as seen by the messaging core. Profile data is
// owned by the external identity provider; the core only assigns a default
// avatar color once on first sight.
type Contact struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	AvatarColor string    `json:"avatar_color,omitempty"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Name returns the best display name available for the contact.
func (c *Contact) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.Email != "" {
		return c.Email
	}
	return "Unknown user"
}

// Initials derives up to two uppercase initials for avatar fallbacks.
func (c *Contact) Initials() string {
	name := strings.TrimSpace(c.Name())
	if name == "" {
		return "U"
	}
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		r := []rune(part)
		b.WriteString(strings.ToUpper(string(r[0])))
		if len([]rune(b.String())) >= 2 {
			break
		}
	}
	return b.String()
}

// UpsertContactRequest is the request to create or refresh a profile.
type UpsertContactRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ListContactsResponse is the response for listing profiles.
type ListContactsResponse struct {
	Contacts []Contact `json:"contacts"`
	Total    int       `json:"total"`
}
