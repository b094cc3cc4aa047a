package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core/coaching"
)

type coachingApi struct {
	svc      coaching.Service
	validate *validator.Validate
}

func registerCoachingAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc coaching.Service, validate *validator.Validate) {
	api := coachingApi{svc: svc, validate: validate}

	eg := g.Group("/engagements", authed...)
	eg.POST("", api.createEngagement)
	eg.GET("", api.queryEngagements)
	eg.GET("/:id", api.retrieveEngagement)
	eg.POST("/:id/end", api.endEngagement)
	eg.POST("/:id/sessions", api.scheduleSession)
	eg.GET("/:id/sessions", api.querySessions)

	sg := g.Group("/sessions", authed...)
	sg.POST("/:id/complete", api.completeSession)
	sg.POST("/:id/cancel", api.cancelSession)
}

func (api *coachingApi) createEngagement(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data coaching.NewEngagement
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEngagement")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	eng, err := api.svc.CreateEngagement(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating engagement")
	}
	return ctx.JSON(http.StatusCreated, eng)
}

func (api *coachingApi) queryEngagements(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindEngagementFilter(ctx)
	if err != nil {
		return err
	}

	engs, err := api.svc.QueryEngagements(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying engagements")
	}
	if engs == nil {
		engs = []coaching.Engagement{}
	}
	return ctx.JSON(http.StatusOK, engs)
}

func (api *coachingApi) retrieveEngagement(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	eng, err := api.svc.GetEngagement(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting engagement")
	}
	return ctx.JSON(http.StatusOK, eng)
}

func (api *coachingApi) endEngagement(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	eng, err := api.svc.EndEngagement(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "ending engagement")
	}
	return ctx.JSON(http.StatusOK, eng)
}

func (api *coachingApi) scheduleSession(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data coaching.NewSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.ScheduleSession(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "scheduling session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *coachingApi) querySessions(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []coaching.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *coachingApi) completeSession(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data coaching.CompleteSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteSession")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.CompleteSession(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "completing session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *coachingApi) cancelSession(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	sess, err := api.svc.CancelSession(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling session")
	}
	return ctx.JSON(http.StatusOK, sess)
}
