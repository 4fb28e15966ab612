package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// User is a Telegram account known to the settlement core. Wallets hang off
// ID; TelegramUserID is how notifications reach the person.
type User struct {
	ID             uuid.UUID `json:"id"`
	TelegramUserID int64     `json:"telegram_user_id"`
	Username       *string   `json:"username,omitempty"`
	FirstName      *string   `json:"first_name,omitempty"`
	LastName       *string   `json:"last_name,omitempty"`
	LanguageCode   *string   `json:"language_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// Mention is a human label for logs and notifications: @username when the
// account has one, then the first name, then the numeric Telegram id.
func (u *User) Mention() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	if u.FirstName != nil && *u.FirstName != "" {
		return *u.FirstName
	}
	return "tg:" + strconv.FormatInt(u.TelegramUserID, 10)
}
