package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/upload"
)

const (
	fileFormField  = "file"
	errFileMissing = "a file is required"

	// room for the boundaries and part headers around the file
	multipartOverhead = 1 << 20
)

type fileApi struct {
	svc upload.Service
}

func registerFileAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc upload.Service, maxUploadSize int64) {
	api := fileApi{svc: svc}
	bodyLimit := middleware.BodyLimit(strconv.FormatInt(maxUploadSize+multipartOverhead, 10))

	fg := g.Group("/files", authed...)
	fg.POST("", api.upload, bodyLimit)
	fg.GET("/:id", api.retrieve)
	fg.GET("/:id/content", api.content)
	fg.DELETE("/:id", api.destroy)
}

func (api *fileApi) upload(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile(fileFormField)
	if err != nil {
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return upload.ErrTooLarge
		}
		return core.NewValidationError(nil, core.FieldError{Field: fileFormField, Error: errFileMissing})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening multipart file")
	}
	defer src.Close()

	file, err := api.svc.Upload(ctx.Request().Context(), actor, fh.Filename, src)
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, file)
}

func (api *fileApi) retrieve(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	file, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting file")
	}
	return ctx.JSON(http.StatusOK, file)
}

func (api *fileApi) content(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	file, content, err := api.svc.Open(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer content.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return ctx.Stream(http.StatusOK, file.ContentType, content)
}

func (api *fileApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.NoContent(http.StatusNoContent)
}
