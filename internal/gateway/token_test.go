package gateway

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestToken_EncodeFormat(t *testing.T) {
	tok := Token{AccountName: "alice", SessionID: "S1"}
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("alice:S1")), tok.Encode())
}

func TestDecodeToken_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"no separator":    "alice",
		"empty account":   ":S1",
		"empty session":   "alice:",
		"extra separator": "alice:S1:x",
		"empty":           "",
	} {
		raw := raw
		t.Run(name, func(t *testing.T) {
			_, err := DecodeToken(base64.StdEncoding.EncodeToString([]byte(raw)))
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}

	_, err := DecodeToken("not base64!")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	_, err := TokenFromRequest(req, "auth-token")
	assert.ErrorIs(t, err, ErrNoCookie)

	want := Token{AccountName: "alice", SessionID: "S1"}
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: want.Encode()})
	got, err := TokenFromRequest(req, "auth-token")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = TokenFromRequest(req, "other")
	assert.ErrorIs(t, err, ErrNoCookie)
}

func TestCookies_SetAndClear(t *testing.T) {
	c := Cookies{Name: "auth-token", MaxAge: 60}

	rec := httptest.NewRecorder()
	c.Set(rec, Token{AccountName: "alice", SessionID: "S1"})
	header := rec.Header().Get("Set-Cookie")
	assert.Contains(t, header, "auth-token=")
	assert.Contains(t, header, "Max-Age=60")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "Secure")
	assert.Contains(t, header, "Path=/")

	rec = httptest.NewRecorder()
	c.Clear(rec)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

// Property: any separator-free non-empty pair survives encode/decode.
func TestPropertyTokenRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tok := Token{
			AccountName: rapid.StringMatching(`[^:]{1,32}`).Draw(t, "account"),
			SessionID:   rapid.StringMatching(`[0-9a-f-]{1,36}`).Draw(t, "session"),
		}
		got, err := DecodeToken(tok.Encode())
		if err != nil {
			t.Fatalf("decode %+v: %v", tok, err)
		}
		if got != tok {
			t.Fatalf("round trip: got %+v want %+v", got, tok)
		}
	})
}

// Property: decoding never yields a token with an empty component.
func TestPropertyDecodeNeverPartial(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[a:]{0,8}`).Draw(t, "raw")
		got, err := DecodeToken(base64.StdEncoding.EncodeToString([]byte(raw)))
		if err == nil && (got.AccountName == "" || got.SessionID == "") {
			t.Fatalf("partial token %+v from %q", got, raw)
		}
	})
}
