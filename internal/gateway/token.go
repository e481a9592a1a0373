package gateway

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// ErrMalformedToken is returned when a cookie value does not decode to
// exactly two non-empty components.
var ErrMalformedToken = errors.New("gateway: malformed auth token")

// ErrNoCookie is returned when the request carries no auth cookie.
var ErrNoCookie = errors.New("gateway: auth cookie missing")

const tokenSeparator = ":"

// Token is the bearer credential carried by the auth cookie.
type Token struct {
	AccountName string
	SessionID   string
}

// Encode returns base64("<accountName>:<sessionId>").
func (t Token) Encode() string {
	return base64.StdEncoding.EncodeToString([]byte(t.AccountName + tokenSeparator + t.SessionID))
}

// DecodeToken reverses Token.Encode.
//
// Postcondition: on success both fields are non-empty; otherwise the error
// wraps ErrMalformedToken and no partial token is returned.
func DecodeToken(value string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return Token{}, errors.Join(ErrMalformedToken, err)
	}
	parts := strings.Split(string(raw), tokenSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Token{}, ErrMalformedToken
	}
	return Token{AccountName: parts[0], SessionID: parts[1]}, nil
}

// TokenFromRequest reads and decodes the named cookie.
//
// Postcondition: returns ErrNoCookie when the cookie is absent or empty,
// or an error wrapping ErrMalformedToken when it does not decode.
func TokenFromRequest(r *http.Request, cookieName string) (Token, error) {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return Token{}, ErrNoCookie
	}
	return DecodeToken(c.Value)
}

// Cookies builds the auth cookie headers.
type Cookies struct {
	Name string
	// MaxAge is the cookie lifetime in seconds.
	MaxAge int
}

// Set writes the auth cookie for t.
func (c Cookies) Set(w http.ResponseWriter, t Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    t.Encode(),
		Path:     "/",
		MaxAge:   c.MaxAge,
		HttpOnly: true,
		Secure:   true,
	})
}

// Clear expires the auth cookie immediately (Max-Age=0).
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
	})
}
