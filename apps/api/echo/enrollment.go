package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core/enrollment"
)

type enrollmentApi struct {
	svc enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc enrollment.Service) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("/enrollments", authed...)
	eg.GET("", api.query)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/modules/:moduleId/complete", api.completeModule)
	eg.POST("/:id/withdraw", api.withdraw)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindEnrollmentFilter(ctx)
	if err != nil {
		return err
	}

	enrs, err := api.svc.Query(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrs == nil {
		enrs = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	enr, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) completeModule(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	enr, err := api.svc.CompleteModule(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("moduleId"))
	if err != nil {
		return errors.Wrap(err, "completing module")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) withdraw(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	enr, err := api.svc.Withdraw(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "withdrawing enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}
