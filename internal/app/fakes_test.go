package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"partner_tracker/internal/domain/cycle"
	"partner_tracker/internal/domain/goal"
	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// memStore is an in-memory stand-in for the Postgres schema. Each repository
// view below shares it, so closures affect verifications and goals together
// exactly like close_team_cycle does.
type memStore struct {
	mu    sync.Mutex
	clock *fakeClock

	teams         map[uuid.UUID]*team.Team
	members       map[uuid.UUID]*team.Member
	verifications []*verification.Verification
	goals         []*goal.Goal
	notifications []*notification.Notification
	nextID        int64

	// Notification rows hidden by their recipient or held back from push.
	deleted   map[uuid.UUID]bool
	retryAt   map[uuid.UUID]time.Time
	abandoned map[uuid.UUID]bool

	// fail maps an operation name to the error it returns.
	fail map[string]error
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{
		clock:   clock,
		teams:   make(map[uuid.UUID]*team.Team),
		members: make(map[uuid.UUID]*team.Member),
		fail:    make(map[string]error),

		deleted:   make(map[uuid.UUID]bool),
		retryAt:   make(map[uuid.UUID]time.Time),
		abandoned: make(map[uuid.UUID]bool),
	}
}

func (m *memStore) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

// failure must be called with mu held.
func (m *memStore) failure(op string) error {
	return m.fail[op]
}

func (m *memStore) addMember(name string, telegramID int64) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	mem := &team.Member{UserID: id, DisplayName: name}
	if telegramID != 0 {
		mem.TelegramID.Int64, mem.TelegramID.Valid = telegramID, true
	}
	m.members[id] = mem
	return id
}

func (m *memStore) addTeam(a, b uuid.UUID, freq schedule.Frequency) *team.Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &team.Team{ID: uuid.New(), MemberA: a, MemberB: b, Category: "running", Frequency: freq, CreatedAt: m.clock.Now()}
	m.teams[t.ID] = t
	return t
}

func (m *memStore) notificationsOf(typ notification.Type) []*notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (m *memStore) openVerifications(teamID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.verifications {
		if v.TeamID == teamID && v.IsOpen() {
			n++
		}
	}
	return n
}

type memTeams struct{ *memStore }

func (r memTeams) Create(_ context.Context, t *team.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("team.create"); err != nil {
		return err
	}
	t.CreatedAt = r.clock.Now()
	cp := *t
	r.teams[t.ID] = &cp
	return nil
}

func (r memTeams) GetByID(_ context.Context, id uuid.UUID) (*team.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("team.get"); err != nil {
		return nil, err
	}
	t, ok := r.teams[id]
	if !ok {
		return nil, team.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTeams) ListActive(_ context.Context) ([]*team.Team, error) {
	return r.list(func(t *team.Team) bool { return !t.IsEnded() })
}

func (r memTeams) ListByMember(_ context.Context, userID uuid.UUID) ([]*team.Team, error) {
	return r.list(func(t *team.Team) bool { return t.HasMember(userID) })
}

func (r memTeams) list(keep func(*team.Team) bool) ([]*team.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("team.list"); err != nil {
		return nil, err
	}
	var out []*team.Team
	for _, t := range r.teams {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r memTeams) End(_ context.Context, id, by uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teams[id]
	if !ok {
		return team.ErrNotFound
	}
	if t.IsEnded() {
		return team.ErrAlreadyEnded
	}
	t.EndedAt.Time, t.EndedAt.Valid = at, true
	t.EndedBy.UUID, t.EndedBy.Valid = by, true
	return nil
}

func (r memTeams) GetMember(_ context.Context, userID uuid.UUID) (*team.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("member.get"); err != nil {
		return nil, err
	}
	mem, ok := r.members[userID]
	if !ok {
		return nil, team.ErrMemberNotFound
	}
	cp := *mem
	return &cp, nil
}

func (r memTeams) GetMemberByTelegramID(_ context.Context, telegramID int64) (*team.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mem := range r.members {
		if mem.TelegramID.Valid && mem.TelegramID.Int64 == telegramID {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, team.ErrMemberNotFound
}

type memCycles struct{ *memStore }

func (r memCycles) OldestOpenStart(_ context.Context, teamID uuid.UUID) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("cycle.oldest"); err != nil {
		return time.Time{}, false, err
	}
	var oldest time.Time
	found := false
	consider := func(start time.Time) {
		if !found || start.Before(oldest) {
			oldest, found = start, true
		}
	}
	for _, v := range r.verifications {
		if v.TeamID == teamID && v.IsOpen() {
			consider(v.CycleStart)
		}
	}
	for _, g := range r.goals {
		if g.TeamID == teamID && !g.CycleEnd.Valid {
			consider(g.CycleStart)
		}
	}
	return oldest, found, nil
}

func (r memCycles) Close(_ context.Context, teamID uuid.UUID, boundary time.Time) (cycle.Closure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := cycle.Closure{TeamID: teamID, Boundary: boundary}
	if err := r.failure("cycle.close"); err != nil {
		return c, err
	}
	if boundary.After(r.clock.Now()) {
		return c, nil
	}
	for _, v := range r.verifications {
		if v.TeamID == teamID && v.IsOpen() && v.CycleStart.Before(boundary) {
			v.CycleEnd.Time, v.CycleEnd.Valid = boundary, true
			c.Verifications++
		}
	}
	for _, g := range r.goals {
		if g.TeamID == teamID && !g.CycleEnd.Valid && g.CycleStart.Before(boundary) {
			g.CycleEnd.Time, g.CycleEnd.Valid = boundary, true
			c.Goals++
		}
	}
	return c, nil
}

func (r memCycles) ListTeamsWithOpenCycles(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("cycle.list"); err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, v := range r.verifications {
		if v.IsOpen() {
			add(v.TeamID)
		}
	}
	for _, g := range r.goals {
		if !g.CycleEnd.Valid {
			add(g.TeamID)
		}
	}
	return ids, nil
}

type memVerifications struct{ *memStore }

func (r memVerifications) Upsert(_ context.Context, v *verification.Verification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("verification.upsert"); err != nil {
		return false, err
	}
	for _, row := range r.verifications {
		if row.TeamID == v.TeamID && row.Verified == v.Verified && row.CycleStart.Equal(v.CycleStart) {
			if !row.IsOpen() {
				return false, nil
			}
			row.Status, row.LoggedBy, row.CreatedAt = v.Status, v.LoggedBy, v.CreatedAt
			v.ID = row.ID
			return true, nil
		}
	}
	r.nextID++
	v.ID = r.nextID
	cp := *v
	r.verifications = append(r.verifications, &cp)
	return true, nil
}

func (r memVerifications) HasLive(_ context.Context, teamID, verifierID, subjectID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("verification.read"); err != nil {
		return false, err
	}
	for _, v := range r.verifications {
		if v.TeamID == teamID && v.LoggedBy == verifierID && v.Verified == subjectID && v.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (r memVerifications) LatestOpen(_ context.Context, teamID, subjectID uuid.UUID) (*verification.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("verification.read"); err != nil {
		return nil, err
	}
	var latest *verification.Verification
	for _, v := range r.verifications {
		if v.TeamID == teamID && v.Verified == subjectID && v.IsOpen() {
			if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
				latest = v
			}
		}
	}
	if latest == nil {
		return nil, verification.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r memVerifications) ListByTeam(_ context.Context, teamID uuid.UUID, limit int) ([]*verification.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("verification.read"); err != nil {
		return nil, err
	}
	var out []*verification.Verification
	for i := len(r.verifications) - 1; i >= 0 && len(out) < limit; i-- {
		if v := r.verifications[i]; v.TeamID == teamID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memGoals struct{ *memStore }

func (r memGoals) GetLive(_ context.Context, teamID, userID uuid.UUID) (*goal.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("goal.read"); err != nil {
		return nil, err
	}
	for _, g := range r.goals {
		if g.TeamID == teamID && g.UserID == userID && !g.CycleEnd.Valid {
			cp := *g
			return &cp, nil
		}
	}
	return nil, goal.ErrNotFound
}

func (r memGoals) Create(_ context.Context, g *goal.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.goals {
		if row.TeamID == g.TeamID && row.UserID == g.UserID && !row.CycleEnd.Valid {
			return goal.ErrDuplicateLive
		}
	}
	r.nextID++
	g.ID = r.nextID
	g.CreatedAt, g.UpdatedAt = r.clock.Now(), r.clock.Now()
	cp := *g
	r.goals = append(r.goals, &cp)
	return nil
}

func (r memGoals) UpdateBody(_ context.Context, id int64, body string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.goals {
		if g.ID == id && !g.CycleEnd.Valid {
			g.Body, g.UpdatedAt = body, r.clock.Now()
			return g.UpdatedAt, nil
		}
	}
	return time.Time{}, goal.ErrNotFound
}

func (r memGoals) HasClosed(_ context.Context, teamID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.goals {
		if g.TeamID == teamID && g.UserID == userID && g.CycleEnd.Valid {
			return true, nil
		}
	}
	return false, nil
}

type memNotifications struct{ *memStore }

func (r memNotifications) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("notification.create"); err != nil {
		return err
	}
	r.insert(n)
	return nil
}

// insert must be called with mu held.
func (r memNotifications) insert(n *notification.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = r.clock.Now()
	cp := *n
	r.notifications = append(r.notifications, &cp)
}

func (r memNotifications) CreateBatch(_ context.Context, ns []*notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("notification.create"); err != nil {
		return err
	}
	for _, n := range ns {
		r.insert(n)
	}
	return nil
}

func (r memNotifications) Exists(_ context.Context, f notification.Filter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("notification.exists"); err != nil {
		return false, err
	}
	for _, n := range r.notifications {
		if n.Type != f.Type || n.RelatedID.UUID != f.RelatedID || n.CreatedAt.Before(f.Since) {
			continue
		}
		if f.RecipientID.Valid && n.RecipientID != f.RecipientID.UUID {
			continue
		}
		if f.Trigger != "" && n.Metadata[notification.MetaTrigger] != f.Trigger {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (r memNotifications) ListByRecipient(_ context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("notification.list"); err != nil {
		return nil, err
	}
	var out []*notification.Notification
	for i := len(r.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := r.notifications[i]
		if n.RecipientID == recipientID && !r.deleted[n.ID] && (!unreadOnly || !n.Read) {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memNotifications) CountUnread(_ context.Context, recipientID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("notification.list"); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !r.deleted[n.ID] && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r memNotifications) owned(id, recipientID uuid.UUID) (int, bool) {
	for i, n := range r.notifications {
		if n.ID == id && n.RecipientID == recipientID && !r.deleted[n.ID] {
			return i, true
		}
	}
	return 0, false
}

func (r memNotifications) MarkRead(_ context.Context, id, recipientID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.owned(id, recipientID)
	if !ok {
		return notification.ErrNotFound
	}
	r.notifications[i].Read = true
	return nil
}

func (r memNotifications) Delete(_ context.Context, id, recipientID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owned(id, recipientID); !ok {
		return notification.ErrNotFound
	}
	r.deleted[id] = true
	return nil
}

func (r memNotifications) ListUndelivered(_ context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("notification.undelivered"); err != nil {
		return nil, err
	}
	var out []*notification.Notification
	for _, n := range r.notifications {
		if len(out) == limit {
			break
		}
		if n.DeliveredAt.Valid || r.deleted[n.ID] || r.abandoned[n.ID] {
			continue
		}
		if at, ok := r.retryAt[n.ID]; ok && at.After(now) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (r memNotifications) DeferDelivery(_ context.Context, id uuid.UUID, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id && !n.DeliveredAt.Valid {
			n.DeliveryAttempts++
			r.retryAt[id] = retryAt
		}
	}
	return nil
}

func (r memNotifications) AbandonDelivery(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id && !n.DeliveredAt.Valid {
			n.DeliveryAttempts++
			r.abandoned[id] = true
		}
	}
	return nil
}

func (r memNotifications) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			n.DeliveredAt.Time, n.DeliveredAt.Valid = at, true
		}
	}
	return nil
}

// memClaims is a ClaimStore with SET NX semantics and no expiry.
type memClaims struct {
	mu    sync.Mutex
	held  map[string]bool
	err   error
	calls int
}

func newMemClaims() *memClaims {
	return &memClaims{held: make(map[string]bool)}
}

func (c *memClaims) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	if c.held[key] {
		return false, nil
	}
	c.held[key] = true
	return true, nil
}

func (c *memClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, key)
	return nil
}

type testEnv struct {
	clock  *fakeClock
	store  *memStore
	claims *memClaims
	engine *Engine
	hook   *test.Hook
}

// newTestEnv wires a full engine over the in-memory store. claims may be nil.
func newTestEnv(now time.Time, claims *memClaims) *testEnv {
	clock := newFakeClock(now)
	store := newMemStore(clock)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	deps := Deps{
		Teams:            memTeams{store},
		Cycles:           memCycles{store},
		Verifications:    memVerifications{store},
		Goals:            memGoals{store},
		Notifications:    memNotifications{store},
		Clock:            clock.Now,
		DedupWindow:      24 * time.Hour,
		SweepConcurrency: 4,
		TeamCacheSize:    16,
		TeamCacheTTL:     time.Minute,
		Log:              logrus.NewEntry(log),
	}
	if claims != nil {
		deps.Claims = claims
	}
	return &testEnv{clock: clock, store: store, claims: claims, engine: NewEngine(deps), hook: hook}
}

// pair creates two members and a team of them.
func (e *testEnv) pair(freq schedule.Frequency) (*team.Team, uuid.UUID, uuid.UUID) {
	a := e.store.addMember("Alice", 1001)
	b := e.store.addMember("Bob", 0)
	return e.store.addTeam(a, b, freq), a, b
}
