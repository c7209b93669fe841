package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-management/internal/middleware"
	"github.com/iliyamo/training-management/internal/service"
)

// Enroller is implemented by *service.EnrollmentService.
type Enroller interface {
	Enroll(ctx context.Context, in service.EnrollInput) (service.EnrollResult, error)
}

// StudentReader is implemented by *service.StudentService.
type StudentReader interface {
	GetStudent(ctx context.Context, id string) (service.StudentProfile, error)
	DashboardForEmail(ctx context.Context, email string) (service.StudentDashboard, error)
}

// StudentHandler serves /students.
type StudentHandler struct {
	Enrollment Enroller
	Students   StudentReader
}

func NewStudentHandler(e Enroller, s StudentReader) *StudentHandler {
	return &StudentHandler{Enrollment: e, Students: s}
}

type enrollReq struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BatchID   string `json:"batchId"`
}

// Enroll: POST /students/enroll (admin).
func (h *StudentHandler) Enroll(c echo.Context) error {
	var req enrollReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.Enrollment.Enroll(c.Request().Context(), service.EnrollInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		BatchID:   req.BatchID,
	})
	if err != nil {
		return err
	}
	return created(c, "student enrolled", res)
}

// Get: GET /students/:id (admin).
func (h *StudentHandler) Get(c echo.Context) error {
	p, err := h.Students.GetStudent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, p)
}

// Dashboard: GET /students/me/dashboard (student).
func (h *StudentHandler) Dashboard(c echo.Context) error {
	d, err := h.Students.DashboardForEmail(c.Request().Context(), middleware.Email(c))
	if err != nil {
		return err
	}
	return ok(c, d)
}
