package service

import (
	"context"
	"time"

	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
)

// noBatch is shown for students not linked to any batch.
const noBatch = "No Batch"

// DashboardStats are the admin dashboard totals.
type DashboardStats struct {
	TotalBatches  int64 `json:"totalBatches"`
	TotalStudents int64 `json:"totalStudents"`
	TotalCourses  int64 `json:"totalCourses"`
}

// AdminBatch is a batch row with its member count.
type AdminBatch struct {
	model.Batch
	StudentCount int64 `json:"studentCount"`
}

// AdminStudent is a student row with the name of their first batch.
type AdminStudent struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone,omitempty"`
	BatchName string    `json:"batchName"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdminService backs the admin dashboard.  Aggregates are computed by
// combining several queries in memory.
type AdminService struct {
	Users   UserStore
	Batches BatchStore
	Members MembershipStore
}

func NewAdminService(users UserStore, batches BatchStore, members MembershipStore) *AdminService {
	return &AdminService{Users: users, Batches: batches, Members: members}
}

func (s *AdminService) DashboardStats(ctx context.Context) (DashboardStats, error) {
	batches, err := s.Batches.Count(ctx)
	if err != nil {
		return DashboardStats{}, Internal("count batches", err)
	}
	students, err := s.Users.CountByRole(ctx, model.RoleStudent)
	if err != nil {
		return DashboardStats{}, Internal("count students", err)
	}
	return DashboardStats{TotalBatches: batches, TotalStudents: students}, nil
}

// AdminBatches lists batches newest first with member counts.
func (s *AdminService) AdminBatches(ctx context.Context, p repository.Page) (PageResult[AdminBatch], error) {
	p = p.Normalize()
	batches, total, err := s.Batches.List(ctx, "", p)
	if err != nil {
		return PageResult[AdminBatch]{}, Internal("list batches", err)
	}
	rows := make([]AdminBatch, 0, len(batches))
	for _, b := range batches {
		n, err := countStudents(ctx, s.Users, s.Members, b.ID)
		if err != nil {
			return PageResult[AdminBatch]{}, Internal("count students", err)
		}
		rows = append(rows, AdminBatch{Batch: b, StudentCount: n})
	}
	return newPageResult(rows, p, total), nil
}

// AdminStudents lists students newest first with their first batch.
func (s *AdminService) AdminStudents(ctx context.Context, p repository.Page) (PageResult[AdminStudent], error) {
	p = p.Normalize()
	users, total, err := s.Users.List(ctx, model.RoleStudent, p)
	if err != nil {
		return PageResult[AdminStudent]{}, Internal("list students", err)
	}

	firstBatch := make(map[string]string, len(users))
	var batchIDs []string
	for _, u := range users {
		links, err := s.Members.ListByStudent(ctx, u.ID)
		if err != nil {
			return PageResult[AdminStudent]{}, Internal("load memberships", err)
		}
		if len(links) > 0 {
			firstBatch[u.ID] = links[0].BatchID
			batchIDs = append(batchIDs, links[0].BatchID)
		}
	}
	batches, err := s.Batches.GetByIDs(ctx, dedupe(batchIDs))
	if err != nil {
		return PageResult[AdminStudent]{}, Internal("load batches", err)
	}
	names := make(map[string]string, len(batches))
	for _, b := range batches {
		names[b.ID] = b.Name
	}

	rows := make([]AdminStudent, 0, len(users))
	for _, u := range users {
		name, ok := names[firstBatch[u.ID]]
		if !ok {
			name = noBatch
		}
		rows = append(rows, AdminStudent{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.DisplayName(),
			Phone:     u.Phone,
			BatchName: name,
			CreatedAt: u.CreatedAt,
		})
	}
	return newPageResult(rows, p, total), nil
}
