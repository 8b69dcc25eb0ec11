package entity

import "time"

// User is a bot account for data transfer between layers.
type User struct {
	ID           int64      `json:"id"`
	TelegramID   int64      `json:"tg_id"`
	Username     string     `json:"username,omitempty"`
	FreeUses     int        `json:"free_uses"`
	IsPro        bool       `json:"is_pro"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	TemplateText *string    `json:"template_text,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasTemplate reports whether a custom template is stored.
func (u *User) HasTemplate() bool {
	return u != nil && u.TemplateText != nil && *u.TemplateText != ""
}

// Template returns the stored template or "".
func (u *User) Template() string {
	if !u.HasTemplate() {
		return ""
	}
	return *u.TemplateText
}

// ProExpired reports whether a pro subscription has lapsed at now.
func (u *User) ProExpired(now time.Time) bool {
	return u != nil && u.IsPro && u.ExpiryDate != nil && u.ExpiryDate.Before(now)
}
