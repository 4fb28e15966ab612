package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultInitDataTTL bounds the age of auth_date. initData is regenerated on
// every mini app launch.
const DefaultInitDataTTL = 5 * time.Minute

var ErrInvalidInitData = errors.New("invalid init data")

// WebAppUser is the "user" object embedded in initData.
type WebAppUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

// ValidateTelegramWebAppData validates initData from Telegram WebApp.
// https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
func ValidateTelegramWebAppData(initData string, botToken string, maxAge time.Duration) (url.Values, error) {
	if maxAge <= 0 {
		maxAge = DefaultInitDataTTL
	}

	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad format: %v", ErrInvalidInitData, err)
	}

	receivedHash := vals.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("%w: hash is missing", ErrInvalidInitData)
	}

	authDateStr := vals.Get("auth_date")
	if authDateStr == "" {
		return nil, fmt.Errorf("%w: auth_date is missing", ErrInvalidInitData)
	}
	authDateUnix, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date is not a unix timestamp", ErrInvalidInitData)
	}
	authDate := time.Unix(authDateUnix, 0)
	if age := time.Since(authDate); age > maxAge {
		return nil, fmt.Errorf("%w: expired, auth_date is %s old (max %s)", ErrInvalidInitData, age.Round(time.Second), maxAge)
	}
	// one minute of clock skew
	if authDate.After(time.Now().Add(time.Minute)) {
		return nil, fmt.Errorf("%w: auth_date is in the future", ErrInvalidInitData)
	}

	var pairs []string
	for key, values := range vals {
		if key == "hash" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)
	dataCheckString := strings.Join(pairs, "\n")

	// secret_key = HMAC-SHA256("WebAppData", bot_token)
	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	expected := hex.EncodeToString(hmacSHA256(secretKey, []byte(dataCheckString)))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(receivedHash))) {
		return nil, fmt.Errorf("%w: hash mismatch", ErrInvalidInitData)
	}
	return vals, nil
}

// ParseWebAppUser validates initData and decodes its user.
func ParseWebAppUser(initData, botToken string, maxAge time.Duration) (*WebAppUser, error) {
	vals, err := ValidateTelegramWebAppData(initData, botToken, maxAge)
	if err != nil {
		return nil, err
	}
	raw := vals.Get("user")
	if raw == "" {
		return nil, fmt.Errorf("%w: user is missing", ErrInvalidInitData)
	}
	var u WebAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == 0 {
		return nil, fmt.Errorf("%w: bad user object", ErrInvalidInitData)
	}
	return &u, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
