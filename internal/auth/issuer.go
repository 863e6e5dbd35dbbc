package auth

import (
	"errors"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const defaultTokenLifetime = time.Hour

// TokenIssuer mints HS256 tokens for a fixed user, used against the admin API.
type TokenIssuer struct {
	signer   jose.Signer
	user     string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenIssuer(params TokenParams, user string) (*TokenIssuer, error) {
	if len(params.Secret) == 0 {
		return nil, errors.New("token secret is empty")
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: params.Secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, errors.New("failed to create the token signer: " + err.Error())
	}

	return &TokenIssuer{
		signer:   signer,
		user:     user,
		audience: params.Audience,
		lifetime: defaultTokenLifetime,
		now:      time.Now,
	}, nil
}

func (i *TokenIssuer) Token() (string, error) {
	now := i.now()
	claims := jwt.Claims{
		Subject:  i.user,
		Audience: jwt.Audience{i.audience},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(i.lifetime)),
	}

	return jwt.Signed(i.signer).Claims(claims).CompactSerialize()
}
