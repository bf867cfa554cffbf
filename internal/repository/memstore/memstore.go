// Package memstore keeps the panel service tables in memory. It backs the
// unit tests and DB_DRIVER=memory.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valtp/saas-platform/panel-service/internal/models"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
)

// Operations that can be made to fail with Store.FailOn.
const (
	OpInstanceGet       = "instances.get"
	OpPanelCreate       = "panels.create"
	OpPanelGet          = "panels.get"
	OpPanelCountRemote  = "panels.count_remote"
	OpPanelDelete       = "panels.delete"
	OpPanelCountByUser  = "panels.count_by_user"
	OpProfileIncrement  = "profiles.increment"
	OpProfileGetRole    = "profiles.get_role"
	OpLogCreate         = "logs.create"
	OpPanelRemoteUserID = "panels.remote_user_ids"
)

// Store holds all tables behind one lock so joins and ON DELETE SET NULL
// behave like the database. Like pgx, every call fails with ctx.Err() once
// its context is done.
type Store struct {
	mu        sync.Mutex
	instances map[string]models.BackingInstance
	panels    map[string]models.Panel
	profiles  map[string]models.Profile
	roles     map[string]models.Role
	logs      []models.PanelLog
	failures  map[string]error
	now       func() time.Time
}

func New() *Store {
	return &Store{
		instances: make(map[string]models.BackingInstance),
		panels:    make(map[string]models.Panel),
		profiles:  make(map[string]models.Profile),
		roles:     make(map[string]models.Role),
		failures:  make(map[string]error),
		now:       time.Now,
	}
}

// FailOn makes op return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// fail requires s.mu to be held.
func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (s *Store) Instances() *InstanceStore { return &InstanceStore{s} }
func (s *Store) Panels() *PanelStore       { return &PanelStore{s} }
func (s *Store) Profiles() *ProfileStore   { return &ProfileStore{s} }
func (s *Store) Logs() *LogStore           { return &LogStore{s} }

// ==================== Instances ====================

type InstanceStore struct{ s *Store }

func (r *InstanceStore) GetByID(ctx context.Context, id string) (*models.BackingInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpInstanceGet); err != nil {
		return nil, err
	}
	inst, ok := r.s.instances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inst, nil
}

func (r *InstanceStore) List(ctx context.Context) ([]*models.BackingInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(false), nil
}

func (r *InstanceStore) ListActive(ctx context.Context) ([]*models.BackingInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(true), nil
}

func (r *InstanceStore) list(activeOnly bool) []*models.BackingInstance {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.BackingInstance
	for _, inst := range r.s.instances {
		if activeOnly && !inst.IsActive {
			continue
		}
		inst := inst
		out = append(out, &inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *InstanceStore) Create(ctx context.Context, inst *models.BackingInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	inst.CreatedAt = r.s.now()
	inst.UpdatedAt = inst.CreatedAt
	r.s.instances[inst.ID] = *inst
	return nil
}

func (r *InstanceStore) Update(ctx context.Context, inst *models.BackingInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.instances[inst.ID]
	if !ok {
		return repository.ErrNotFound
	}
	inst.CreatedAt = old.CreatedAt
	inst.UpdatedAt = r.s.now()
	r.s.instances[inst.ID] = *inst
	return nil
}

func (r *InstanceStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.instances[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.instances, id)
	for pid, p := range r.s.panels {
		if p.ServerID != nil && *p.ServerID == id {
			p.ServerID = nil
			r.s.panels[pid] = p
		}
	}
	return nil
}

// ==================== Panels ====================

type PanelStore struct{ s *Store }

func (r *PanelStore) Create(ctx context.Context, p *models.Panel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPanelCreate); err != nil {
		return err
	}
	p.CreatedAt = r.s.now()
	stored := *p
	stored.Password = ""
	r.s.panels[p.ID] = stored
	return nil
}

func (r *PanelStore) GetOwnedWithInstance(ctx context.Context, id, userID string) (*models.PanelWithInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPanelGet); err != nil {
		return nil, err
	}
	p, ok := r.s.panels[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	pw := &models.PanelWithInstance{Panel: p}
	if p.ServerID != nil {
		if inst, ok := r.s.instances[*p.ServerID]; ok {
			pw.Instance = &inst
		}
	}
	return pw, nil
}

func (r *PanelStore) CountByRemoteUser(ctx context.Context, instanceID string, pteroUserID int, excludeID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPanelCountRemote); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range r.s.panels {
		if p.ID == excludeID || p.ServerID == nil || *p.ServerID != instanceID {
			continue
		}
		if p.PteroUserID != nil && *p.PteroUserID == pteroUserID {
			n++
		}
	}
	return n, nil
}

func (r *PanelStore) Delete(ctx context.Context, id, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPanelDelete); err != nil {
		return 0, err
	}
	p, ok := r.s.panels[id]
	if !ok || p.UserID != userID {
		return 0, nil
	}
	delete(r.s.panels, id)
	return 1, nil
}

func (r *PanelStore) ListByUser(ctx context.Context, userID string) ([]*models.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(func(p models.Panel) bool { return p.UserID == userID }), nil
}

func (r *PanelStore) CountByUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	if err := r.s.fail(OpPanelCountByUser); err != nil {
		r.s.mu.Unlock()
		return 0, err
	}
	r.s.mu.Unlock()
	return len(r.list(func(p models.Panel) bool { return p.UserID == userID })), nil
}

func (r *PanelStore) ListAll(ctx context.Context) ([]*models.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.list(func(models.Panel) bool { return true }), nil
}

func (r *PanelStore) RemoteUserIDs(ctx context.Context, instanceID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPanelRemoteUserID); err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var ids []int
	for _, p := range r.s.panels {
		if p.ServerID == nil || *p.ServerID != instanceID || p.PteroUserID == nil {
			continue
		}
		if !seen[*p.PteroUserID] {
			seen[*p.PteroUserID] = true
			ids = append(ids, *p.PteroUserID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *PanelStore) list(keep func(models.Panel) bool) []*models.Panel {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Panel
	for _, p := range r.s.panels {
		if keep(p) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ==================== Profiles ====================

type ProfileStore struct{ s *Store }

func (r *ProfileStore) IncrementPanelCount(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpProfileIncrement); err != nil {
		return err
	}
	p, ok := r.s.profiles[userID]
	if !ok {
		p = models.Profile{UserID: userID, CreatedAt: r.s.now()}
	}
	p.PanelCreationsCount++
	r.s.profiles[userID] = p
	return nil
}

func (r *ProfileStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *ProfileStore) GetRole(ctx context.Context, userID string) (models.Role, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpProfileGetRole); err != nil {
		return "", err
	}
	role, ok := r.s.roles[userID]
	if !ok {
		return models.RoleFree, nil
	}
	return role, nil
}

func (r *ProfileStore) SetRole(ctx context.Context, userID string, role models.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.roles[userID] = role
	return nil
}

// ==================== Logs ====================

type LogStore struct{ s *Store }

func (r *LogStore) Create(ctx context.Context, entry *models.PanelLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpLogCreate); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = r.s.now()
	r.s.logs = append(r.s.logs, *entry)
	return nil
}

func (r *LogStore) ListByPanel(ctx context.Context, panelID string, limit int) ([]*models.PanelLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PanelLog
	for i := len(r.s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.s.logs[i]
		if e.PanelID != nil && *e.PanelID == panelID {
			out = append(out, &e)
		}
	}
	return out, nil
}

// Actions returns the logged actions in order, optionally filtered by a
// case-insensitive prefix.
func (r *LogStore) Actions(prefix string) []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for _, e := range r.s.logs {
		if strings.HasPrefix(strings.ToLower(e.Action), strings.ToLower(prefix)) {
			out = append(out, e.Action)
		}
	}
	return out
}

// Entries returns a copy of every log entry.
func (r *LogStore) Entries() []models.PanelLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.PanelLog(nil), r.s.logs...)
}
