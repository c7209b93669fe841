package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
	"github.com/iliyamo/training-management/internal/service"
)

// BatchManager is implemented by *service.BatchService.
type BatchManager interface {
	CreateBatch(ctx context.Context, in service.CreateBatchInput) (model.Batch, error)
	ListBatches(ctx context.Context, status string, p repository.Page) (service.PageResult[model.Batch], error)
	AssignStudents(ctx context.Context, batchID string, studentIDs []string) (int, error)
	BatchProgress(ctx context.Context, batchID string) (service.BatchProgress, error)
}

// BatchHandler serves /batches.  Every route is admin only.
type BatchHandler struct {
	Batches BatchManager
}

func NewBatchHandler(b BatchManager) *BatchHandler { return &BatchHandler{Batches: b} }

type createBatchReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
}

type assignReq struct {
	StudentIDs []string `json:"studentIds"`
}

// Create: POST /batches.
func (h *BatchHandler) Create(c echo.Context) error {
	var req createBatchReq
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := h.Batches.CreateBatch(c.Request().Context(), service.CreateBatchInput{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		return err
	}
	return created(c, "batch created", b)
}

// List: GET /batches?status=&page=&limit=.
func (h *BatchHandler) List(c echo.Context) error {
	p, err := pageFrom(c)
	if err != nil {
		return err
	}
	res, err := h.Batches.ListBatches(c.Request().Context(), c.QueryParam("status"), p)
	if err != nil {
		return err
	}
	return ok(c, res)
}

// AssignStudents: POST /batches/:batchId/students.
func (h *BatchHandler) AssignStudents(c echo.Context) error {
	var req assignReq
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := h.Batches.AssignStudents(c.Request().Context(), c.Param("batchId"), req.StudentIDs)
	if err != nil {
		return err
	}
	return ok(c, echo.Map{"assigned": n})
}

// Progress: GET /batches/:batchId/progress.
func (h *BatchHandler) Progress(c echo.Context) error {
	p, err := h.Batches.BatchProgress(c.Request().Context(), c.Param("batchId"))
	if err != nil {
		return err
	}
	return ok(c, p)
}
