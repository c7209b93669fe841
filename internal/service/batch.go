package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
)

// CreateBatchInput is an admin's new batch.  Dates are ISO 8601, either a
// plain date or an RFC 3339 timestamp.
type CreateBatchInput struct {
	Name        string
	Description string
	StartDate   string
	EndDate     string
}

// PageResult is one page of a listing.
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func newPageResult[T any](items []T, p repository.Page, total int64) PageResult[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return PageResult[T]{Items: items, Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// BatchProgress summarises a batch.  Courses are not modelled yet, so the
// course list is empty and progress is zero.
type BatchProgress struct {
	BatchID         string   `json:"batchId"`
	BatchName       string   `json:"batchName"`
	TotalStudents   int64    `json:"totalStudents"`
	Courses         []string `json:"courses"`
	OverallProgress int      `json:"overallProgress"`
}

// BatchService manages batches and their membership.
type BatchService struct {
	Users   UserStore
	Batches BatchStore
	Members MembershipStore
	Log     *zap.Logger
}

func NewBatchService(users UserStore, batches BatchStore, members MembershipStore, log *zap.Logger) *BatchService {
	return &BatchService{Users: users, Batches: batches, Members: members, Log: log}
}

// CreateBatch stores a new active batch with a generated code.
func (s *BatchService) CreateBatch(ctx context.Context, in CreateBatchInput) (model.Batch, error) {
	f := fieldErrors{}
	name := strings.TrimSpace(in.Name)
	f.name("name", name)
	f.required("startDate", in.StartDate)

	var b model.Batch
	if in.StartDate != "" {
		start, err := parseDate(in.StartDate)
		if err != nil {
			f["startDate"] = "startDate must be an ISO 8601 date"
		}
		b.StartDate = start
	}
	if in.EndDate != "" {
		end, err := parseDate(in.EndDate)
		switch {
		case err != nil:
			f["endDate"] = "endDate must be an ISO 8601 date"
		case !b.StartDate.IsZero() && end.Before(b.StartDate):
			f["endDate"] = "endDate must not be before startDate"
		default:
			b.EndDate = &end
		}
	}
	if err := f.err("invalid batch"); err != nil {
		return model.Batch{}, err
	}

	b.Name = name
	if d := strings.TrimSpace(in.Description); d != "" {
		b.Description = &d
	}
	if err := s.Batches.Create(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Batch{}, Conflict("could not allocate a batch code, try again", err)
		}
		return model.Batch{}, Internal("create batch", err)
	}
	s.Log.Info("batch created", zap.String("batch_id", b.ID), zap.String("batch_code", b.BatchCode))
	return b, nil
}

// ListBatches returns one page of batches, optionally filtered by status.
func (s *BatchService) ListBatches(ctx context.Context, status string, p repository.Page) (PageResult[model.Batch], error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", model.BatchStatusActive, model.BatchStatusCompleted, model.BatchStatusArchived:
	default:
		return PageResult[model.Batch]{}, ValidationError("invalid status filter", map[string]string{"status": "status must be active, completed or archived"})
	}
	p = p.Normalize()
	items, total, err := s.Batches.List(ctx, status, p)
	if err != nil {
		return PageResult[model.Batch]{}, Internal("list batches", err)
	}
	return newPageResult(items, p, total), nil
}

// AssignStudents links existing students to a batch and returns how many
// links were requested.  Re-assigning a student is a no-op.  Every id must
// name an active student; otherwise nothing is assigned.
func (s *BatchService) AssignStudents(ctx context.Context, batchID string, studentIDs []string) (int, error) {
	ids := dedupe(studentIDs)
	if len(ids) == 0 {
		return 0, ValidationError("studentIds must be a non-empty array", map[string]string{"studentIds": "at least one student id is required"})
	}
	if _, err := s.Batches.GetByID(ctx, batchID); err != nil {
		return 0, lookupError("batch", err)
	}

	users, err := s.Users.GetByIDs(ctx, ids)
	if err != nil {
		return 0, Internal("load students", err)
	}
	found := make(map[string]bool, len(users))
	for _, u := range users {
		if u.Role == model.RoleStudent && !u.IsPending() {
			found[u.ID] = true
		}
	}
	var unknown []string
	for _, id := range ids {
		if !found[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return 0, ValidationError("some students were not found",
			map[string]string{"studentIds": "unknown student ids: " + strings.Join(unknown, ", ")})
	}

	for _, id := range ids {
		if _, err := s.Members.Assign(ctx, id, batchID); err != nil {
			return 0, Internal("assign student", err)
		}
	}
	s.Log.Info("students assigned", zap.String("batch_id", batchID), zap.Int("count", len(ids)))
	return len(ids), nil
}

// BatchProgress reports a batch's member count.
func (s *BatchService) BatchProgress(ctx context.Context, batchID string) (BatchProgress, error) {
	b, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return BatchProgress{}, lookupError("batch", err)
	}
	n, err := countStudents(ctx, s.Users, s.Members, b.ID)
	if err != nil {
		return BatchProgress{}, Internal("count students", err)
	}
	return BatchProgress{BatchID: b.ID, BatchName: b.Name, TotalStudents: n, Courses: []string{}}, nil
}

// countStudents counts the active students linked to a batch.  Links held
// by pending reservations or by users that no longer exist are skipped.
func countStudents(ctx context.Context, users UserStore, members MembershipStore, batchID string) (int64, error) {
	links, err := members.ListByBatch(ctx, batchID)
	if err != nil || len(links) == 0 {
		return 0, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.StudentID)
	}
	found, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, u := range found {
		if u.Role == model.RoleStudent && !u.IsPending() {
			n++
		}
	}
	return n, nil
}

// parseDate accepts "2006-01-02" or RFC 3339.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t.UTC(), err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
