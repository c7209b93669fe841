package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
)

// StudentBatch is a batch as seen from one student's profile.
type StudentBatch struct {
	BatchID    string    `json:"batchId"`
	BatchCode  string    `json:"batchCode"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	StartDate  time.Time `json:"startDate"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// StudentProfile is a student with their batches, oldest enrollment first.
type StudentProfile struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Name      string         `json:"name"`
	Role      string         `json:"role"`
	Phone     *string        `json:"phone,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Batches   []StudentBatch `json:"batches"`
}

// StudentDashboard is what a signed-in student sees.  Course progress is
// not tracked yet, so it reports zero.
type StudentDashboard struct {
	Student         StudentProfile `json:"student"`
	TotalBatches    int            `json:"totalBatches"`
	OverallProgress int            `json:"overallProgress"`
}

// StudentService reads student profiles.
type StudentService struct {
	Users   UserStore
	Batches BatchStore
	Members MembershipStore
}

func NewStudentService(users UserStore, batches BatchStore, members MembershipStore) *StudentService {
	return &StudentService{Users: users, Batches: batches, Members: members}
}

// GetStudent returns a student's profile.  Pending reservations and admins
// are reported as not found.
func (s *StudentService) GetStudent(ctx context.Context, id string) (StudentProfile, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return StudentProfile{}, lookupError("student", err)
	}
	if u.IsPending() || u.Role != model.RoleStudent {
		return StudentProfile{}, NotFound("student")
	}
	return s.profile(ctx, u)
}

// DashboardForEmail builds the dashboard of the student signed in as email.
func (s *StudentService) DashboardForEmail(ctx context.Context, email string) (StudentDashboard, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return StudentDashboard{}, lookupError("student", err)
	}
	if u.IsPending() {
		return StudentDashboard{}, NotFound("student")
	}
	p, err := s.profile(ctx, u)
	if err != nil {
		return StudentDashboard{}, err
	}
	return StudentDashboard{Student: p, TotalBatches: len(p.Batches)}, nil
}

func (s *StudentService) profile(ctx context.Context, u model.User) (StudentProfile, error) {
	links, err := s.Members.ListByStudent(ctx, u.ID)
	if err != nil {
		return StudentProfile{}, Internal("load memberships", err)
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.BatchID)
	}
	batches, err := s.Batches.GetByIDs(ctx, ids)
	if err != nil {
		return StudentProfile{}, Internal("load batches", err)
	}
	byID := make(map[string]model.Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}

	out := StudentProfile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Name:      u.DisplayName(),
		Role:      u.Role,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		Batches:   make([]StudentBatch, 0, len(links)),
	}
	for _, l := range links {
		b, ok := byID[l.BatchID]
		if !ok {
			continue // batch removed out of band
		}
		out.Batches = append(out.Batches, StudentBatch{
			BatchID:    b.ID,
			BatchCode:  b.BatchCode,
			Name:       b.Name,
			Status:     b.Status,
			StartDate:  b.StartDate,
			EnrolledAt: l.EnrolledAt,
		})
	}
	return out, nil
}

// lookupError maps a repository lookup failure.
func lookupError(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound(what)
	}
	return Internal("load "+what, err)
}
