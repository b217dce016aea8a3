package store

import (
	"context"
	"sort"
	"sync"

	"github.com/botsdv/backend/internal/errs"
	"github.com/botsdv/backend/internal/models"
)

// Memory is an in-process Store. Every read returns copies so callers can
// never mutate stored state outside ConditionalUpdate.
type Memory struct {
	mu       sync.Mutex
	tickets  map[string]models.Ticket
	numbers  map[string]string
	comments []models.Comment
	users    map[string]models.User
}

func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[string]models.Ticket),
		numbers: make(map[string]string),
		users:   make(map[string]models.User),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) InsertTicket(_ context.Context, t models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.numbers[t.TicketNumber]; ok {
		return errs.Duplicate("ticket_number", nil)
	}
	if _, ok := m.tickets[t.ID]; ok {
		return errs.Duplicate("id", nil)
	}
	m.tickets[t.ID] = cloneTicket(t)
	m.numbers[t.TicketNumber] = t.ID
	return nil
}

func (m *Memory) GetTicket(_ context.Context, id string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, errs.NotFound("ticket %s not found", id)
	}
	return cloneTicket(t), nil
}

func (m *Memory) GetTicketByNumber(_ context.Context, number string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.numbers[number]
	if !ok {
		return models.Ticket{}, errs.NotFound("ticket %s not found", number)
	}
	return cloneTicket(m.tickets[id]), nil
}

func (m *Memory) ConditionalUpdate(_ context.Context, id string, cond Condition, patch Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || !cond.Matches(t) {
		return false, nil
	}
	patch.Apply(&t)
	m.tickets[id] = t
	return true, nil
}

func (m *Memory) QueryTickets(_ context.Context, f TicketFilter) ([]models.Ticket, error) {
	m.mu.Lock()
	out := make([]models.Ticket, 0)
	for _, t := range m.tickets {
		if matchTicket(f, t) {
			out = append(out, cloneTicket(t))
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) DeleteTicket(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return errs.NotFound("ticket %s not found", id)
	}
	delete(m.tickets, id)
	delete(m.numbers, t.TicketNumber)
	kept := m.comments[:0]
	for _, c := range m.comments {
		if c.TicketID != id {
			kept = append(kept, c)
		}
	}
	m.comments = kept
	return nil
}

func (m *Memory) TicketYears(context.Context) ([]int, error) {
	m.mu.Lock()
	seen := make(map[int]struct{})
	for _, t := range m.tickets {
		seen[t.CreatedAt.UTC().Year()] = struct{}{}
	}
	m.mu.Unlock()
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

func (m *Memory) TicketCategories(context.Context) ([]string, error) {
	m.mu.Lock()
	seen := make(map[string]struct{})
	for _, t := range m.tickets {
		if t.Category != "" {
			seen[t.Category] = struct{}{}
		}
	}
	m.mu.Unlock()
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) InsertComment(_ context.Context, c models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, c)
	return nil
}

func (m *Memory) ListComments(_ context.Context, ticketID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Comment, 0)
	for _, c := range m.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) MarkCommentsRead(_ context.Context, ticketID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.comments {
		c := &m.comments[i]
		if c.TicketID == ticketID && c.Role == models.RoleUser && !c.ReadByAgent {
			c.ReadByAgent = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkCommentSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.comments {
		if m.comments[i].ID == id {
			m.comments[i].SentToTelegram = true
			return nil
		}
	}
	return errs.NotFound("comment %s not found", id)
}

func (m *Memory) ListUndeliveredComments(_ context.Context, limit int) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Comment, 0)
	for _, c := range m.comments {
		if c.Role.Staff() && !c.SentToTelegram {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UnreadTicketIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, c := range m.comments {
		if c.Role != models.RoleUser || c.ReadByAgent {
			continue
		}
		if _, ok := seen[c.TicketID]; !ok {
			seen[c.TicketID] = struct{}{}
			out = append(out, c.TicketID)
		}
	}
	return out, nil
}

func (m *Memory) InsertUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return errs.Duplicate("username", nil)
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, errs.NotFound("user %s not found", id)
	}
	return u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, errs.NotFound("user %s not found", username)
}

func (m *Memory) ListUsers(_ context.Context, f UserFilter) ([]models.User, error) {
	m.mu.Lock()
	out := make([]models.User, 0)
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		out = append(out, u)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ApproveUser(_ context.Context, id string, role models.Role) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, errs.NotFound("user %s not found", id)
	}
	u.Role = role
	u.Status = models.UserApproved
	m.users[id] = u
	return u, nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return errs.NotFound("user %s not found", id)
	}
	delete(m.users, id)
	return nil
}

func matchTicket(f TicketFilter, t models.Ticket) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if f.AssignedAgent != "" && !t.HeldBy(f.AssignedAgent) {
		return false
	}
	if f.Unassigned && t.AssignedAgent != nil {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if !f.CreatedFrom.IsZero() && t.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !t.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func cloneTicket(t models.Ticket) models.Ticket {
	t.AssignedAgent = copyString(t.AssignedAgent)
	t.AssignedAgentName = copyString(t.AssignedAgentName)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	if t.Details != nil {
		d := make(map[string]string, len(t.Details))
		for k, v := range t.Details {
			d[k] = v
		}
		t.Details = d
	}
	return t
}
