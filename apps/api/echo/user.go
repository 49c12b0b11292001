package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/user"
)

type userApi struct {
	svc    *user.Service
	tokens *tokenIssuer
}

func registerUserAPI(g *echo.Group, auth []echo.MiddlewareFunc, svc *user.Service, tokens *tokenIssuer) {
	api := userApi{svc: svc, tokens: tokens}

	// un-authed endpoints
	g.POST("/register", api.register)
	g.POST("/login", api.login)
	g.POST("/token/refresh", api.refreshToken)

	// authed endpoints
	ug := g.Group("/users", auth...)
	ug.GET("/me", api.me)
	ug.GET("", api.query, registrarMiddleware)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	usr, err := api.svc.Authenticate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	access, refresh, err := api.tokens.pair(usr)
	if err != nil {
		return errors.Wrap(err, "generating tokens")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{User: usr, Access: access, Refresh: refresh})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if data.Refresh == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "refresh", Error: "this field is required"})
	}

	claims, err := api.tokens.parseRefresh(data.Refresh)
	if err != nil {
		return errInvalidRefresh
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return errInvalidRefresh
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errInvalidRefresh
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return errInvalidRefresh
	}

	access, err := api.tokens.generate(usr, TokenAccess)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{Access: access})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := user.QueryFilter{Role: ctx.QueryParam("role")}
	if val := ctx.QueryParam("is_active"); val != "" {
		isActive, err := strconv.ParseBool(val)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "must be a boolean"})
		}
		filter.IsActive = &isActive
	}

	users, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "filtering users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func registrarMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.IsRegistrar() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

type (
	LoginResponse struct {
		User    user.User `json:"user"`
		Access  string    `json:"access"`
		Refresh string    `json:"refresh"`
	}

	RefreshRequest struct {
		Refresh string `json:"refresh"`
	}

	RefreshResponse struct {
		Access string `json:"access"`
	}
)
