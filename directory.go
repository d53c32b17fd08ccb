package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tab selects which directory list is shown.
type Tab string

const (
	TabUsers  Tab = "users"
	TabGroups Tab = "groups"
)

const (
	// FrequentContactsLimit is how many recent contacts FrequentContacts
	// returns.
	FrequentContactsLimit = 3
	// CandidateMembersLimit is how many users CandidateMembers fetches.
	CandidateMembersLimit = 50
)

// Directory is the chat list: paginated users and groups with search.
type Directory struct {
	emitter

	backend Backend
	logger  zerolog.Logger
	users   *Feed[User]
	groups  *Feed[Group]

	mu   sync.Mutex
	view UserView
	tab  Tab
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*directoryConfig)

type directoryConfig struct {
	logger         zerolog.Logger
	metrics        *Metrics
	pageSize       int
	fetchTimeout   time.Duration
	searchDebounce time.Duration
	view           UserView
}

func WithDirectoryLogger(logger zerolog.Logger) DirectoryOption {
	return func(c *directoryConfig) { c.logger = logger }
}

func WithDirectoryMetrics(m *Metrics) DirectoryOption {
	return func(c *directoryConfig) { c.metrics = m }
}

func WithDirectoryPageSize(n int) DirectoryOption {
	return func(c *directoryConfig) { c.pageSize = n }
}

func WithDirectoryDebounce(d time.Duration) DirectoryOption {
	return func(c *directoryConfig) { c.searchDebounce = d }
}

// WithInitialView sets the users view; the default is ViewChatted.
func WithInitialView(v UserView) DirectoryOption {
	return func(c *directoryConfig) { c.view = v }
}

func NewDirectory(backend Backend, opts ...DirectoryOption) *Directory {
	cfg := directoryConfig{
		logger:         zerolog.Nop(),
		pageSize:       DefaultPageSize,
		fetchTimeout:   DefaultFetchTimeout,
		searchDebounce: DefaultSearchDebounce,
		view:           ViewChatted,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Directory{
		backend: backend,
		logger:  cfg.logger.With().Str("component", "directory").Logger(),
		view:    cfg.view,
		tab:     TabUsers,
	}
	onError := func(err error) { d.emit(EventFetchFailed, err) }
	d.users = NewFeed(nil, d.fetchUsers, FeedOptions{
		Name:           "users",
		PageSize:       cfg.pageSize,
		Timeout:        cfg.fetchTimeout,
		SearchDebounce: cfg.searchDebounce,
		Logger:         d.logger,
		Metrics:        cfg.metrics,
		OnChange:       func() { d.emit(EventUsersChanged, nil) },
		OnError:        onError,
	})
	d.groups = NewFeed(nil, d.fetchGroups, FeedOptions{
		Name:           "groups",
		PageSize:       cfg.pageSize,
		Timeout:        cfg.fetchTimeout,
		SearchDebounce: cfg.searchDebounce,
		Logger:         d.logger,
		Metrics:        cfg.metrics,
		OnChange:       func() { d.emit(EventGroupsChanged, nil) },
		OnError:        onError,
	})
	return d
}

func (d *Directory) fetchUsers(ctx context.Context, req PageRequest) (*Page[User], error) {
	d.mu.Lock()
	view := d.view
	d.mu.Unlock()
	return d.backend.GetUsers(ctx, UserQuery{Page: req.Page, PageSize: req.PageSize, Search: req.Search, View: view})
}

func (d *Directory) fetchGroups(ctx context.Context, req PageRequest) (*Page[Group], error) {
	return d.backend.GetGroups(ctx, GroupQuery{Page: req.Page, Limit: req.PageSize, Search: req.Search})
}

// ── Users ────────────────────────────────────────────────

func (d *Directory) Users() []User { return d.users.Items() }
func (d *Directory) UsersState() PageState { return d.users.State() }
func (d *Directory) LoadUsers(ctx context.Context) error { return d.users.FetchPage(ctx, FetchReset) }
func (d *Directory) MoreUsers(ctx context.Context) error { return d.users.FetchPage(ctx, FetchForward) }

func (d *Directory) View() UserView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view
}

// SetUserView switches between chatted and all users and reloads.
func (d *Directory) SetUserView(ctx context.Context, v UserView) error {
	d.mu.Lock()
	d.view = v
	d.mu.Unlock()
	return d.users.FetchPage(ctx, FetchReset)
}

// FrequentContacts returns the first loaded users that have a last message.
func (d *Directory) FrequentContacts() []User {
	var out []User
	for _, u := range d.users.Items() {
		if u.LastMessage == "" {
			continue
		}
		out = append(out, u)
		if len(out) == FrequentContactsLimit {
			break
		}
	}
	return out
}

// FilterUsers matches name, username, role or email case-insensitively.
func (d *Directory) FilterUsers(term string) []User {
	users := d.users.Items()
	q := strings.ToLower(strings.TrimSpace(term))
	if q == "" {
		return users
	}
	var out []User
	for _, u := range users {
		if containsFold(q, u.Name, u.Username, u.Role, u.Email) {
			out = append(out, u)
		}
	}
	return out
}

// CandidateMembers fetches users eligible for a new group.
func (d *Directory) CandidateMembers(ctx context.Context, term string) ([]User, error) {
	page, err := d.backend.GetUsers(ctx, UserQuery{
		Page:     1,
		PageSize: CandidateMembersLimit,
		Search:   strings.TrimSpace(term),
		View:     ViewAll,
	})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// ── Groups ───────────────────────────────────────────────

func (d *Directory) Groups() []Group { return d.groups.Items() }
func (d *Directory) GroupsState() PageState { return d.groups.State() }
func (d *Directory) LoadGroups(ctx context.Context) error { return d.groups.FetchPage(ctx, FetchReset) }
func (d *Directory) MoreGroups(ctx context.Context) error { return d.groups.FetchPage(ctx, FetchForward) }

// FilterGroups matches name or description case-insensitively.
func (d *Directory) FilterGroups(term string) []Group {
	groups := d.groups.Items()
	q := strings.ToLower(strings.TrimSpace(term))
	if q == "" {
		return groups
	}
	var out []Group
	for _, g := range groups {
		if containsFold(q, g.Name, g.Description) {
			out = append(out, g)
		}
	}
	return out
}

// CreateGroup creates a group and reloads the groups list.
func (d *Directory) CreateGroup(ctx context.Context, name string, memberIDs []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("group name is required")
	}
	if len(memberIDs) == 0 {
		return errors.New("select at least one member")
	}
	if err := d.backend.CreateGroup(ctx, name, memberIDs); err != nil {
		return err
	}
	d.logger.Info().Str("group", name).Int("members", len(memberIDs)).Msg("group created")
	return d.groups.FetchPage(ctx, FetchReset)
}

// ── Tabs & Search ────────────────────────────────────────

func (d *Directory) Tab() Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tab
}

// SetTab switches the visible list, clears its search term and reloads it.
func (d *Directory) SetTab(ctx context.Context, t Tab) error {
	d.mu.Lock()
	d.tab = t
	d.mu.Unlock()
	if t == TabGroups {
		d.groups.SetSearch("")
		return d.groups.FetchPage(ctx, FetchReset)
	}
	d.users.SetSearch("")
	return d.users.FetchPage(ctx, FetchReset)
}

// Search schedules a debounced reload of the visible list.
func (d *Directory) Search(term string) {
	if d.Tab() == TabGroups {
		d.groups.Search(term)
		return
	}
	d.users.Search(term)
}

// SetSearch sets the search term of a list without reloading it.
func (d *Directory) SetSearch(t Tab, term string) {
	if t == TabGroups {
		d.groups.SetSearch(term)
		return
	}
	d.users.SetSearch(term)
}

// LoadMore loads the next page of the visible list.
func (d *Directory) LoadMore(ctx context.Context) error {
	if d.Tab() == TabGroups {
		return d.MoreGroups(ctx)
	}
	return d.MoreUsers(ctx)
}

func (d *Directory) Close() {
	d.users.Close()
	d.groups.Close()
	d.removeAll()
}

func containsFold(q string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
