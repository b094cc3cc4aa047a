package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/program"
)

type programApi struct {
	svc           program.Service
	enrollmentSvc enrollment.Service
	validate      *validator.Validate
}

func registerProgramAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc program.Service,
	enrollmentSvc enrollment.Service,
	validate *validator.Validate,
) {
	api := programApi{svc: svc, enrollmentSvc: enrollmentSvc, validate: validate}

	pg := g.Group("/programs", authed...)
	pg.POST("", api.create)
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
	pg.PUT("/:id", api.update)
	pg.DELETE("/:id", api.destroy)
	pg.POST("/:id/publish", api.publish)
	pg.POST("/:id/archive", api.archive)

	pg.POST("/:id/modules", api.addModule)
	pg.PUT("/:id/modules/order", api.reorderModules)
	pg.PUT("/:id/modules/:moduleId", api.updateModule)
	pg.DELETE("/:id/modules/:moduleId", api.destroyModule)

	pg.POST("/:id/enrollments", api.enroll)
}

func (api *programApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data program.NewProgram
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *programApi) query(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindProgramFilter(ctx)
	if err != nil {
		return err
	}

	progs, err := api.svc.Query(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if progs == nil {
		progs = []program.Program{}
	}
	return ctx.JSON(http.StatusOK, progs)
}

func (api *programApi) retrieve(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	prog, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *programApi) update(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data program.UpdateProgram
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgram")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *programApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting program")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *programApi) publish(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	prog, err := api.svc.Publish(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *programApi) archive(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	prog, err := api.svc.Archive(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "archiving program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *programApi) addModule(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data program.NewModule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	mod, err := api.svc.AddModule(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

func (api *programApi) updateModule(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data program.UpdateModule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateModule")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	mod, err := api.svc.UpdateModule(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("moduleId"), data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *programApi) destroyModule(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteModule(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("moduleId")); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *programApi) reorderModules(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data program.ReorderModules
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderModules")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.ReorderModules(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reordering modules")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *programApi) enroll(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data enrollment.NewEnrollments
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollments")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	enrs, err := api.enrollmentSvc.Enroll(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "enrolling users")
	}
	return ctx.JSON(http.StatusCreated, enrs)
}
