package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core/assessment"
)

type assessmentApi struct {
	svc      assessment.Service
	validate *validator.Validate
}

func registerAssessmentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc assessment.Service, validate *validator.Validate) {
	api := assessmentApi{svc: svc, validate: validate}

	ag := g.Group("/assessments", authed...)
	ag.POST("", api.create)
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)

	ag.POST("/:id/raters", api.addRaters)
	ag.GET("/:id/raters", api.queryRaters)
	ag.POST("/:id/open", api.open)
	ag.POST("/:id/close", api.close)
	ag.POST("/:id/responses", api.submitResponses)

	ag.GET("/:id/results", api.results)
	ag.POST("/:id/report", api.generateReport)
	ag.GET("/:id/report", api.report)
}

func (api *assessmentApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data assessment.NewAssessment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating assessment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assessmentApi) query(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindAssessmentFilter(ctx)
	if err != nil {
		return err
	}

	list, err := api.svc.Query(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	if list == nil {
		list = []assessment.Assessment{}
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *assessmentApi) retrieve(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) update(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data assessment.UpdateAssessment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssessment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating assessment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) addRaters(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data assessment.NewRaters
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRaters")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	raters, err := api.svc.AddRaters(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding raters")
	}
	return ctx.JSON(http.StatusCreated, raters)
}

func (api *assessmentApi) queryRaters(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	raters, err := api.svc.Raters(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying raters")
	}
	if raters == nil {
		raters = []assessment.Rater{}
	}
	return ctx.JSON(http.StatusOK, raters)
}

func (api *assessmentApi) open(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Open(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening assessment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) close(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Close(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing assessment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) submitResponses(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data assessment.SubmitResponses
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitResponses")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rater, err := api.svc.SubmitResponses(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting responses")
	}
	return ctx.JSON(http.StatusOK, rater)
}

func (api *assessmentApi) results(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Results(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing results")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *assessmentApi) generateReport(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.GenerateReport(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "generating report")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) report(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	file, content, err := api.svc.Report(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening report")
	}
	defer content.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", file.Name))
	return ctx.Stream(http.StatusOK, file.ContentType, content)
}
