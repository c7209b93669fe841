package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-management/internal/repository"
	"github.com/iliyamo/training-management/internal/service"
)

// AdminReader is implemented by *service.AdminService.
type AdminReader interface {
	DashboardStats(ctx context.Context) (service.DashboardStats, error)
	AdminBatches(ctx context.Context, p repository.Page) (service.PageResult[service.AdminBatch], error)
	AdminStudents(ctx context.Context, p repository.Page) (service.PageResult[service.AdminStudent], error)
}

// AdminHandler serves the /admin dashboard listings.
type AdminHandler struct {
	Admin AdminReader
}

func NewAdminHandler(a AdminReader) *AdminHandler { return &AdminHandler{Admin: a} }

func (h *AdminHandler) Dashboard(c echo.Context) error {
	s, err := h.Admin.DashboardStats(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, s)
}

func (h *AdminHandler) Batches(c echo.Context) error {
	p, err := pageFrom(c)
	if err != nil {
		return err
	}
	res, err := h.Admin.AdminBatches(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (h *AdminHandler) Students(c echo.Context) error {
	p, err := pageFrom(c)
	if err != nil {
		return err
	}
	res, err := h.Admin.AdminStudents(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return ok(c, res)
}
