package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core/tenant"
)

type tenantApi struct {
	svc      tenant.Service
	validate *validator.Validate
}

func registerTenantAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc tenant.Service, validate *validator.Validate) {
	api := tenantApi{svc: svc, validate: validate}

	ag := g.Group("/agencies", authed...)
	ag.POST("", api.createAgency)
	ag.GET("", api.queryAgencies)
	ag.GET("/:id", api.retrieveAgency)
	ag.PUT("/:id", api.updateAgency)

	tg := g.Group("/tenants", authed...)
	tg.POST("", api.createTenant)
	tg.GET("", api.queryTenants)
	tg.GET("/:id", api.retrieveTenant)
	tg.PUT("/:id", api.updateTenant)
}

func (api *tenantApi) createAgency(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data tenant.NewAgency
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAgency")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	agency, err := api.svc.CreateAgency(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating agency")
	}
	return ctx.JSON(http.StatusCreated, agency)
}

func (api *tenantApi) queryAgencies(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindTenantFilter(ctx)
	if err != nil {
		return err
	}

	agencies, err := api.svc.QueryAgencies(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying agencies")
	}
	if agencies == nil {
		agencies = []tenant.Agency{}
	}
	return ctx.JSON(http.StatusOK, agencies)
}

func (api *tenantApi) retrieveAgency(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	agency, err := api.svc.GetAgency(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting agency")
	}
	return ctx.JSON(http.StatusOK, agency)
}

func (api *tenantApi) updateAgency(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data tenant.UpdateAgency
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAgency")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	agency, err := api.svc.UpdateAgency(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating agency")
	}
	return ctx.JSON(http.StatusOK, agency)
}

func (api *tenantApi) createTenant(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data tenant.NewTenant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTenant")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tnt, err := api.svc.CreateTenant(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating tenant")
	}
	return ctx.JSON(http.StatusCreated, tnt)
}

func (api *tenantApi) queryTenants(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindTenantFilter(ctx)
	if err != nil {
		return err
	}

	tenants, err := api.svc.QueryTenants(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying tenants")
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *tenantApi) retrieveTenant(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	tnt, err := api.svc.GetTenant(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting tenant")
	}
	return ctx.JSON(http.StatusOK, tnt)
}

func (api *tenantApi) updateTenant(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data tenant.UpdateTenant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tnt, err := api.svc.UpdateTenant(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating tenant")
	}
	return ctx.JSON(http.StatusOK, tnt)
}
