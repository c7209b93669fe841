package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
)

func addStudent(t *testing.T, users *memUsers, email string) model.User {
	t.Helper()
	u := model.User{Email: email, FirstName: "S", LastName: email, Role: model.RoleStudent, Status: model.UserStatusActive}
	require.NoError(t, users.Create(context.Background(), &u))
	return u
}

func TestCreateBatch(t *testing.T) {
	batches := newMemBatches()
	svc := NewBatchService(newMemUsers(), batches, &memMembers{}, zap.NewNop())

	b, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		Name: " Autumn ", Description: "evening track", StartDate: "2026-11-01", EndDate: "2027-02-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "Autumn", b.Name)
	assert.Equal(t, model.BatchStatusActive, b.Status)
	assert.Regexp(t, `^B[0-9]{3}$`, b.BatchCode)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), b.StartDate)
	require.NotNil(t, b.Description)
	require.NotNil(t, b.EndDate)
}

func TestCreateBatchValidation(t *testing.T) {
	svc := NewBatchService(newMemUsers(), newMemBatches(), &memMembers{}, zap.NewNop())
	tests := []struct {
		name  string
		in    CreateBatchInput
		field string
	}{
		{"no name", CreateBatchInput{StartDate: "2026-01-01"}, "name"},
		{"no start", CreateBatchInput{Name: "x"}, "startDate"},
		{"bad start", CreateBatchInput{Name: "x", StartDate: "01/02/2026"}, "startDate"},
		{"end before start", CreateBatchInput{Name: "x", StartDate: "2026-02-01", EndDate: "2026-01-01"}, "endDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBatch(context.Background(), tt.in)
			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, KindValidation, se.Kind)
			assert.Contains(t, se.Fields, tt.field)
		})
	}
}

func TestListBatchesPaginates(t *testing.T) {
	batches := newMemBatches()
	for i := 0; i < 25; i++ {
		batches.add(fmt.Sprintf("batch %d", i))
	}
	svc := NewBatchService(newMemUsers(), batches, &memMembers{}, zap.NewNop())

	res, err := svc.ListBatches(context.Background(), "", repository.Page{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Items, 5)
	assert.EqualValues(t, 25, res.Total)
	assert.EqualValues(t, 3, res.TotalPages)
	assert.Equal(t, "batch 4", res.Items[0].Name)

	res, err = svc.ListBatches(context.Background(), "", repository.Page{Page: 0, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, repository.MaxPageSize, res.Limit)
	assert.Equal(t, "batch 24", res.Items[0].Name, "newest first")

	_, err = svc.ListBatches(context.Background(), "bogus", repository.Page{})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestAssignStudents(t *testing.T) {
	users, batches, members := newMemUsers(), newMemBatches(), &memMembers{}
	b := batches.add("Spring")
	s1 := addStudent(t, users, "a@example.com")
	s2 := addStudent(t, users, "b@example.com")
	svc := NewBatchService(users, batches, members, zap.NewNop())

	n, err := svc.AssignStudents(context.Background(), b.ID, []string{s1.ID, s2.ID, s1.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// assigning again does not duplicate links
	_, err = svc.AssignStudents(context.Background(), b.ID, []string{s1.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, members.count())

	_, err = svc.AssignStudents(context.Background(), b.ID, []string{s1.ID, "ghost"})
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindValidation, se.Kind)
	assert.Contains(t, se.Fields["studentIds"], "ghost")

	_, err = svc.AssignStudents(context.Background(), "missing", []string{s1.ID})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.AssignStudents(context.Background(), b.ID, nil)
	assert.Equal(t, KindValidation, KindOf(err))

	p, err := svc.BatchProgress(context.Background(), b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.TotalStudents)
	assert.Empty(t, p.Courses)
	assert.Zero(t, p.OverallProgress)
}

func TestAdminViews(t *testing.T) {
	users, batches, members := newMemUsers(), newMemBatches(), &memMembers{}
	spring := batches.add("Spring")
	batches.add("Summer")
	s1 := addStudent(t, users, "a@example.com")
	addStudent(t, users, "b@example.com")
	admin := model.User{Email: "root@example.com", Role: model.RoleAdmin, Status: model.UserStatusActive}
	require.NoError(t, users.Create(context.Background(), &admin))
	_, _ = members.Assign(context.Background(), s1.ID, spring.ID)

	svc := NewAdminService(users, batches, members)

	stats, err := svc.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{TotalBatches: 2, TotalStudents: 2}, stats)

	bs, err := svc.AdminBatches(context.Background(), repository.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bs.Items, 2)
	assert.Equal(t, "Summer", bs.Items[0].Name)
	assert.EqualValues(t, 0, bs.Items[0].StudentCount)
	assert.EqualValues(t, 1, bs.Items[1].StudentCount)

	ss, err := svc.AdminStudents(context.Background(), repository.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, ss.Items, 2)
	assert.Equal(t, "b@example.com", ss.Items[0].Email)
	assert.Equal(t, "No Batch", ss.Items[0].BatchName)
	assert.Equal(t, "Spring", ss.Items[1].BatchName)
}

func TestStudentCountsSkipPendingAndMissingUsers(t *testing.T) {
	users, batches, members := newMemUsers(), newMemBatches(), &memMembers{}
	b := batches.add("Spring")
	s1 := addStudent(t, users, "a@example.com")
	since := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	pending := model.User{Email: "p@example.com", Role: model.RoleStudent, Status: model.UserStatusPending, PendingSince: &since}
	require.NoError(t, users.Create(context.Background(), &pending))

	for _, id := range []string{s1.ID, pending.ID, "deleted-user"} {
		_, err := members.Assign(context.Background(), id, b.ID)
		require.NoError(t, err)
	}

	p, err := NewBatchService(users, batches, members, zap.NewNop()).BatchProgress(context.Background(), b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.TotalStudents)

	bs, err := NewAdminService(users, batches, members).AdminBatches(context.Background(), repository.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bs.Items, 1)
	assert.EqualValues(t, 1, bs.Items[0].StudentCount)
}
