package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
)

type issueApi struct {
	svc *issue.Service
}

func registerIssueAPI(g *echo.Group, auth []echo.MiddlewareFunc, svc *issue.Service) {
	api := issueApi{svc: svc}

	ig := g.Group("/issues", auth...)
	ig.GET("", api.query)
	ig.POST("", api.create)

	dg := ig.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/assign", api.assign)
	dg.POST("/resolve", api.resolve)

	ng := g.Group("/notifications", auth...)
	ng.GET("", api.notifications)
	ng.POST("/:id/mark-read", api.markRead)
}

// actorAndID returns the context user and the `:id` path param.
func actorAndID(ctx echo.Context) (user.User, int, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return user.User{}, 0, err
	}
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return user.User{}, 0, errHttpNotFound
	}
	return usr, id, nil
}

// Handlers

func (api *issueApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := issue.QueryFilter{Status: ctx.QueryParam("status")}

	issues, err := api.svc.List(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "listing issues")
	}
	if issues == nil {
		issues = []issue.Issue{}
	}
	return ctx.JSON(http.StatusOK, issues)
}

func (api *issueApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data issue.NewIssue
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIssue")
	}

	iss, err := api.svc.Submit(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "submitting issue")
	}
	return ctx.JSON(http.StatusCreated, iss)
}

func (api *issueApi) retrieve(ctx echo.Context) error {
	usr, id, err := actorAndID(ctx)
	if err != nil {
		return err
	}
	iss, err := api.svc.Get(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting issue")
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *issueApi) update(ctx echo.Context) error {
	usr, id, err := actorAndID(ctx)
	if err != nil {
		return err
	}
	var data issue.UpdateIssue
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateIssue")
	}

	iss, err := api.svc.Update(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "updating issue")
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *issueApi) destroy(ctx echo.Context) error {
	usr, id, err := actorAndID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting issue")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *issueApi) assign(ctx echo.Context) error {
	usr, id, err := actorAndID(ctx)
	if err != nil {
		return err
	}
	var data AssignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	if data.LecturerID == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "lecturer_id", Error: "this field is required"})
	}

	iss, err := api.svc.Assign(ctx.Request().Context(), usr, id, data.LecturerID)
	if err != nil {
		return errors.Wrap(err, "assigning issue")
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *issueApi) resolve(ctx echo.Context) error {
	usr, id, err := actorAndID(ctx)
	if err != nil {
		return err
	}
	iss, err := api.svc.Resolve(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "resolving issue")
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *issueApi) notifications(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	notes, err := api.svc.Notifications(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	if notes == nil {
		notes = []issue.Notification{}
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *issueApi) markRead(ctx echo.Context) error {
	usr, id, err := actorAndID(ctx)
	if err != nil {
		return err
	}
	note, err := api.svc.MarkNotificationRead(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, note)
}

type AssignRequest struct {
	LecturerID int `json:"lecturer_id"`
}
