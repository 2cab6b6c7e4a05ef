package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/simp-lee/alipayauth"
)

const (
	sessionCookie = "alipay_session"
	stateCookie   = "alipay_state"
	sessionIssuer = "alipay-login"
)

// sessionUser is what the demo verify callback produces from a profile.
type sessionUser struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

func userFromProfile(p *alipayauth.Profile) *sessionUser {
	return &sessionUser{ID: p.ID, Name: p.DisplayName, Avatar: p.Avatar}
}

type sessionClaims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// sessions issues and reads HS256 session cookies.
type sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (s *sessions) issue(u *sessionUser) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Name:   u.Name,
		Avatar: u.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *sessions) parse(raw string) (*sessionUser, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("session: missing subject")
	}
	return &sessionUser{ID: claims.Subject, Name: claims.Name, Avatar: claims.Avatar}, nil
}

func (s *sessions) fromRequest(r *http.Request) (*sessionUser, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, err
	}
	return s.parse(c.Value)
}

func (s *sessions) set(w http.ResponseWriter, r *http.Request, u *sessionUser) error {
	tok, err := s.issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
	return nil
}
