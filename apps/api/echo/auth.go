package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/user"
)

// Token types
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Type     string `json:"typ"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// tokenIssuer signs and verifies the access & refresh tokens of the API.
type tokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
}

func newTokenIssuer(conf *core.Config, clock clockwork.Clock) *tokenIssuer {
	return &tokenIssuer{
		key:        []byte(conf.SecretKey),
		issuer:     conf.AppName,
		accessTTL:  conf.Server.AccessTokenExpiration,
		refreshTTL: conf.Server.RefreshTokenExpiration,
		clock:      clock,
	}
}

func (ti *tokenIssuer) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    ti.key,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func (ti *tokenIssuer) claims(usr user.User, typ string) *Claims {
	now := ti.clock.Now()
	ttl := ti.accessTTL
	if typ == TokenRefresh {
		ttl = ti.refreshTTL
	}
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.issuer,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Type:     typ,
		Username: usr.Username,
		Role:     usr.Role,
	}
	if typ == TokenRefresh {
		claims.Id = uuid.New().String()
	}
	return claims
}

// generate signs a token of the given type for usr.
func (ti *tokenIssuer) generate(usr user.User, typ string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ti.claims(usr, typ))
	ss, err := token.SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// pair returns a fresh access & refresh token for usr.
func (ti *tokenIssuer) pair(usr user.User) (access, refresh string, err error) {
	if access, err = ti.generate(usr, TokenAccess); err != nil {
		return "", "", err
	}
	if refresh, err = ti.generate(usr, TokenRefresh); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// parseRefresh verifies a refresh token and returns its claims.
func (ti *tokenIssuer) parseRefresh(tokenString string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.key, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing refresh token")
	}
	if claims.Type != TokenRefresh {
		return nil, errors.New("not a refresh token")
	}
	return claims, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// accessTokenMiddleware rejects refresh tokens presented as bearer tokens.
func accessTokenMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if claims.Type != TokenAccess {
			return errInvalidToken
		}
		return next(ctx)
	}
}

// contextUserMiddleware loads the token's user; deleted or deactivated users are unauthorized.
func contextUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(claims.Subject)
			if err != nil {
				return errInvalidToken
			}
			usr, err := svc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errUnauthorized
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}
