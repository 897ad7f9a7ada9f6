package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"prepdeck/internal/domain"
)

// ErrInvalidToken indicates the session token failed verification or expired.
var ErrInvalidToken = errors.New("invalid session token")

// Binder mints session identities and converts them to and from signed
// cookie tokens. Identity lives only in the token; nothing is persisted.
type Binder struct {
	secret []byte
	ttl    time.Duration

	mu   sync.Mutex
	last int64
}

func NewBinder(secret string, ttl time.Duration) *Binder {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Binder{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Begin mints a fresh identity for username. Session times are Unix
// milliseconds, forced strictly increasing so two logins in the same
// millisecond still get distinct compound keys.
func (b *Binder) Begin(username string) domain.SessionIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= b.last {
		now = b.last + 1
	}
	b.last = now

	return domain.SessionIdentity{
		Username:    username,
		SessionTime: now,
	}
}

// TTL reports the configured token lifetime, used for the cookie max age.
func (b *Binder) TTL() time.Duration {
	return b.ttl
}

type claims struct {
	jwt.RegisteredClaims
	Username    string `json:"username"`
	SessionTime int64  `json:"session_time"`
	Domain      string `json:"domain,omitempty"`
}

// Token signs the identity into a compact token suitable for an httpOnly cookie.
func (b *Binder) Token(identity domain.SessionIdentity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(b.ttl)),
		},
		Username:    identity.Username,
		SessionTime: identity.SessionTime,
		Domain:      identity.Domain,
	})
	return token.SignedString(b.secret)
}

// Parse verifies a token and reconstructs the identity it carries.
func (b *Binder) Parse(tokenString string) (domain.SessionIdentity, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(t *jwt.Token) (interface{}, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.SessionIdentity{}, ErrInvalidToken
	}
	if !token.Valid || c.Username == "" || c.SessionTime == 0 {
		return domain.SessionIdentity{}, ErrInvalidToken
	}

	return domain.SessionIdentity{
		Username:    c.Username,
		SessionTime: c.SessionTime,
		Domain:      c.Domain,
	}, nil
}
