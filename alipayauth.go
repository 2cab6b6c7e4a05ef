package alipayauth

import (
	"fmt"
	"time"
)

// Gender represents the gender reported in a user-info payload.
type Gender int

const (
	// GenderUnknown indicates the gender is not known or not specified.
	GenderUnknown Gender = 0
	// GenderMale indicates male ("m").
	GenderMale Gender = 1
	// GenderFemale indicates female ("f").
	GenderFemale Gender = 2
)

// String returns the string representation of the Gender.
func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// Token is the result of exchanging an authorization code.
type Token struct {
	AccessToken  string
	RefreshToken string
	// UserID is the Alipay user id (user_id).
	UserID string
	// OpenID is the per-application user id returned by newer gateway versions.
	OpenID       string
	AlipayUserID string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int
	// ReExpiresIn is the refresh token lifetime in seconds.
	ReExpiresIn int
	// ExpiresAt is zero when the gateway did not report expires_in.
	ExpiresAt time.Time
	// Raw is the complete token response node.
	Raw map[string]any
}

// IsExpired reports whether the token has expired.
// It returns true when ExpiresAt is the zero value or is not after the current time.
func (t *Token) IsExpired() bool {
	return t.isExpiredAt(time.Now())
}

func (t *Token) isExpiredAt(now time.Time) bool {
	return t.ExpiresAt.IsZero() || !t.ExpiresAt.After(now)
}

// maskToken masks a token string for safe display.
func maskToken(s string) string {
	if s == "" {
		return ""
	}
	if len(s) >= 4 {
		return s[:4] + "****"
	}
	return "****"
}

// String returns a sanitized string representation of the Token.
// Access and refresh tokens are masked to avoid exposing sensitive values.
func (t *Token) String() string {
	return fmt.Sprintf("Token{AccessToken:%q, RefreshToken:%q, UserID:%q, ExpiresIn:%d, ExpiresAt:%s}",
		maskToken(t.AccessToken),
		maskToken(t.RefreshToken),
		t.UserID,
		t.ExpiresIn,
		t.ExpiresAt.Format(time.RFC3339),
	)
}

// Photo is one profile picture reference.
type Photo struct {
	Value string `json:"value"`
}

// Profile is the normalized identity record handed to the verify callback.
type Profile struct {
	// Provider is always "alipay" for full profiles.
	Provider    string  `json:"provider,omitempty"`
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName,omitempty"`
	Avatar      string  `json:"avatar,omitempty"`
	Photos      []Photo `json:"photos,omitempty"`
	OpenID      string  `json:"openId,omitempty"`
	Gender      Gender  `json:"gender,omitempty"`
	Province    string  `json:"province,omitempty"`
	City        string  `json:"city,omitempty"`
	// Raw is the user-info payload the profile was built from.
	Raw map[string]any `json:"-"`
}
