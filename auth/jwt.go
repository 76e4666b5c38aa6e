package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

var errMissingSecret = errors.New("missing jwt secret")

type JWTOptions struct {
	// Secret is the HMAC key of the tokens.
	Secret []byte

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Now is used for the time based claims. Defaults to time.Now.
	Now func() time.Time
}

// JWTGate validates HS256, HS384 and HS512 signed bearer tokens.
type JWTGate struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

var _ Gate = (*JWTGate)(nil)

func NewJWTGate(o JWTOptions) (*JWTGate, error) {
	if len(o.Secret) == 0 {
		return nil, errMissingSecret
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	return &JWTGate{
		secret: o.Secret,
		issuer: o.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{
				jwt.SigningMethodHS256.Alg(),
				jwt.SigningMethodHS384.Alg(),
				jwt.SigningMethodHS512.Alg(),
			}),
			jwt.WithoutClaimsValidation(),
		),
		now: o.Now,
	}, nil
}

func (g *JWTGate) keyFunc(*jwt.Token) (any, error) {
	return g.secret, nil
}

func (g *JWTGate) Authenticate(r *http.Request) (*Principal, error) {
	s, err := getToken(r)
	if err != nil {
		return nil, err
	}

	var claims jwt.RegisteredClaims
	if _, err := g.parser.ParseWithClaims(s, &claims, g.keyFunc); err != nil {
		return nil, reject(invalidToken, err)
	}

	now := g.now()
	if !claims.VerifyExpiresAt(now, false) {
		return nil, reject(expiredToken, nil)
	}

	if !claims.VerifyNotBefore(now, false) || !claims.VerifyIssuedAt(now, false) {
		return nil, reject(invalidToken, nil)
	}

	if g.issuer != "" && !claims.VerifyIssuer(g.issuer, true) {
		return nil, reject(invalidIssuer, nil)
	}

	if claims.Subject == "" {
		return nil, reject(invalidSub, nil)
	}

	p := &Principal{UserID: claims.Subject, Issuer: claims.Issuer}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}

	log.Debugf("Authenticated user %s", p.UserID)
	return p, nil
}
