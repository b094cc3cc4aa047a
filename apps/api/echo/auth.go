package echoapi

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/user"
)

const (
	contextClaimsKey = "userClaims"
	contextUserKey   = "user"
	tokenAudience    = "tos-portal"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	AgencyID     string   `json:"agency_id,omitempty"`
	TenantID     string   `json:"tenant_id,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// Authenticator issues and verifies the API tokens.
type Authenticator struct {
	conf  *core.Config
	clock clockwork.Clock
	key   []byte
}

func NewAuthenticator(conf *core.Config, clock clockwork.Clock) *Authenticator {
	return &Authenticator{conf: conf, clock: clock, key: []byte(conf.SecretKey)}
}

// UserClaims returns the claims of a token for usr.
// origIat is the issue time of the first token of a refresh chain.
func (a *Authenticator) UserClaims(usr user.User, origIat ...int64) *Claims {
	now := a.clock.Now()

	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(a.conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		AgencyID:     usr.AgencyID,
		TenantID:     usr.TenantID,
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *Authenticator) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(a.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *Authenticator) parseToken(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(*jwt.Token) (interface{}, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(a.conf.AppName),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// middleware rejects requests without a valid bearer token and stores its claims in the context.
func (a *Authenticator) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return errMissingToken
			}
			claims, err := a.parseToken(strings.TrimSpace(raw))
			if err != nil {
				return errInvalidToken.WithInternal(err)
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

// userMiddleware loads the user of the token and makes sure they may still use the API.
func userMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return errInvalidToken
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if err = svc.CheckActive(ctx.Request().Context(), usr); err != nil {
				if errors.Is(err, tenant.ErrInactive) {
					return errAccountDeactivated
				}
				return errors.Wrap(err, "checking user is active")
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return claims, nil
	}
	return nil, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// contextActor returns the principal of an authenticated request.
func contextActor(ctx echo.Context) (rbac.Actor, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return rbac.Actor{}, err
	}
	return usr.Actor(), nil
}

func authenticate(ctx context.Context, uname, pwd string, svc user.Service, auth *Authenticator) (*Claims, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if err = svc.CheckActive(ctx, usr); err != nil {
		if errors.Is(err, tenant.ErrInactive) {
			return nil, errAccountDeactivated
		}
		return nil, errors.Wrap(err, "checking user is active")
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return auth.UserClaims(usr), nil
}

func refreshToken(ctx echo.Context, auth *Authenticator) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(auth.conf.Server.JWTRefreshExpirationDelta)
	if auth.clock.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := auth.GenerateToken(auth.UserClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
