package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_Mention(t *testing.T) {
	name, empty, first := "alice", "", "Bob"

	tests := []struct {
		name string
		user User
		want string
	}{
		{"Username", User{Username: &name, FirstName: &first}, "@alice"},
		{"Empty username falls back", User{Username: &empty, FirstName: &first}, "Bob"},
		{"Only telegram id", User{TelegramUserID: 42}, "tg:42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Mention())
		})
	}
}
