package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/training-management/internal/keycloak"
	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/notify"
	"github.com/iliyamo/training-management/internal/repository"
)

// memUsers mimics the Mongo user repository including its unique indexes.
type memUsers struct {
	mu    sync.Mutex
	byID  map[string]model.User
	seq   int
	fails map[string]error // method name -> forced error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]model.User{}, fails: map[string]error{}}
}

func (m *memUsers) fail(method string) error { return m.fails[method] }

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Create"); err != nil {
		return err
	}
	u.Email = repository.NormalizeEmail(u.Email)
	for _, x := range m.byID {
		if x.Email == u.Email {
			return repository.ErrEmailExists
		}
		if u.KeycloakID != "" && x.KeycloakID == u.KeycloakID {
			return repository.ErrIdentityLinked
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.seq++
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == repository.NormalizeEmail(email) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByKeycloakID(_ context.Context, keycloakID string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.KeycloakID != "" && u.KeycloakID == keycloakID {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByIDs(_ context.Context, ids []string) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := m.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) active(role string) []model.User {
	var out []model.User
	for _, u := range m.byID {
		if u.IsPending() || (role != "" && u.Role != role) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memUsers) List(_ context.Context, role string, p repository.Page) ([]model.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.active(role)
	return window(all, p), int64(len(all)), nil
}

func (m *memUsers) CountByRole(_ context.Context, role string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.active(role))), nil
}

func (m *memUsers) UpdateRole(_ context.Context, id, role string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	u.Role = role
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) UpdateEmail(_ context.Context, id, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, x := range m.byID {
		if x.ID != id && x.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	u.Email = email
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) LinkPending(_ context.Context, id, keycloakID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("LinkPending"); err != nil {
		return false, err
	}
	u, ok := m.byID[id]
	if !ok || !u.IsPending() {
		return false, nil
	}
	u.KeycloakID = keycloakID
	m.byID[id] = u
	return true, nil
}

func (m *memUsers) Activate(_ context.Context, id, keycloakID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Activate"); err != nil {
		return err
	}
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.KeycloakID, u.Status, u.PendingSince = keycloakID, model.UserStatusActive, nil
	m.byID[id] = u
	return nil
}

func (m *memUsers) ReclaimPending(_ context.Context, id string, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || !u.IsPending() || u.PendingSince == nil || !u.PendingSince.Before(staleBefore) {
		return false, nil
	}
	now := time.Now().UTC()
	u.PendingSince = &now
	m.byID[id] = u
	return true, nil
}

func (m *memUsers) DeletePending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok && u.IsPending() {
		delete(m.byID, id)
	}
	return nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memBatches struct {
	mu   sync.Mutex
	byID map[string]model.Batch
	seq  int
}

func newMemBatches() *memBatches { return &memBatches{byID: map[string]model.Batch{}} }

func (m *memBatches) Create(_ context.Context, b *model.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BatchStatusActive
	}
	b.BatchCode = fmt.Sprintf("B%03d", 100+m.seq)
	b.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Hour)
	b.UpdatedAt = b.CreatedAt
	m.byID[b.ID] = *b
	return nil
}

func (m *memBatches) add(name string) model.Batch {
	b := model.Batch{Name: name, StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	_ = m.Create(context.Background(), &b)
	return b
}

func (m *memBatches) GetByID(_ context.Context, id string) (model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return model.Batch{}, repository.ErrNotFound
	}
	return b, nil
}

func (m *memBatches) GetByIDs(_ context.Context, ids []string) ([]model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Batch
	for _, id := range ids {
		if b, ok := m.byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBatches) List(_ context.Context, status string, p repository.Page) ([]model.Batch, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Batch
	for _, b := range m.byID {
		if status == "" || b.Status == status {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, p), int64(len(all)), nil
}

func (m *memBatches) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byID)), nil
}

type memMembers struct {
	mu      sync.Mutex
	links   []model.StudentBatch
	seq     int
	failErr error
}

func (m *memMembers) Assign(_ context.Context, studentID, batchID string) (model.StudentBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return model.StudentBatch{}, m.failErr
	}
	for _, l := range m.links {
		if l.StudentID == studentID && l.BatchID == batchID {
			return l, nil
		}
	}
	m.seq++
	l := model.StudentBatch{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		BatchID:    batchID,
		EnrolledAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute),
	}
	m.links = append(m.links, l)
	return l, nil
}

func (m *memMembers) RemoveByStudent(_ context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = slices.DeleteFunc(m.links, func(l model.StudentBatch) bool { return l.StudentID == studentID })
	return nil
}

func (m *memMembers) filter(keep func(model.StudentBatch) bool) []model.StudentBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StudentBatch
	for _, l := range m.links {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func (m *memMembers) ListByBatch(_ context.Context, batchID string) ([]model.StudentBatch, error) {
	return m.filter(func(l model.StudentBatch) bool { return l.BatchID == batchID }), nil
}

func (m *memMembers) ListByStudent(_ context.Context, studentID string) ([]model.StudentBatch, error) {
	return m.filter(func(l model.StudentBatch) bool { return l.StudentID == studentID }), nil
}

func (m *memMembers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func window[T any](all []T, p repository.Page) []T {
	p = p.Normalize()
	start := int(p.Offset())
	if start >= len(all) {
		return nil
	}
	end := min(start+p.Limit, len(all))
	return all[start:end]
}

// fakeIdP records admin calls and returns scripted errors.
type fakeIdP struct {
	mu sync.Mutex

	accounts map[string]string // email -> id
	created  []keycloak.NewUser
	deleted  []string
	resets   []string

	createErr error
	grant     keycloak.TokenSet
	grantErr  error
	userInfo  keycloak.UserInfo
	refresh   json.RawMessage
}

func newFakeIdP() *fakeIdP { return &fakeIdP{accounts: map[string]string{}} }

func providerErr(status int, kind error) error {
	return &keycloak.ProviderError{Op: "test", Status: status, Description: http.StatusText(status), Kind: kind}
}

func (f *fakeIdP) PasswordGrant(context.Context, string, string) (keycloak.TokenSet, error) {
	return f.grant, f.grantErr
}

func (f *fakeIdP) Refresh(_ context.Context, rt string) (json.RawMessage, error) {
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	return f.refresh, nil
}

func (f *fakeIdP) UserInfo(context.Context, string) (keycloak.UserInfo, error) {
	return f.userInfo, nil
}

func (f *fakeIdP) CreateUser(_ context.Context, u keycloak.NewUser) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	if _, ok := f.accounts[u.Email]; ok {
		return "", providerErr(http.StatusConflict, keycloak.ErrDuplicateUser)
	}
	id := "kc-" + uuid.NewString()
	f.accounts[u.Email] = id
	f.created = append(f.created, u)
	return id, nil
}

func (f *fakeIdP) ResetPassword(_ context.Context, id, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.accounts {
		if x == id {
			f.resets = append(f.resets, id)
			return nil
		}
	}
	return providerErr(http.StatusNotFound, keycloak.ErrUserNotFound)
}

func (f *fakeIdP) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	for email, x := range f.accounts {
		if x == id {
			delete(f.accounts, email)
		}
	}
	return nil
}

func (f *fakeIdP) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeVerifier struct {
	claims *keycloak.Claims
	err    error
}

func (v fakeVerifier) Verify(context.Context, string) (*keycloak.Claims, error) {
	if v.err != nil {
		return nil, v.err
	}
	c := *v.claims
	return &c, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

var errBoom = errors.New("boom")
