package chatsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prismer-AI/chatsync"
	"github.com/Prismer-AI/chatsync/mock"
)

// ============================================================================
// Test Helpers
// ============================================================================

func makeTestDirectory(t *testing.T, opts ...chatsync.DirectoryOption) (*chatsync.Directory, *mock.MockBackend) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mock.NewMockBackend(ctrl)
	opts = append([]chatsync.DirectoryOption{chatsync.WithDirectoryPageSize(2), chatsync.WithDirectoryDebounce(20 * time.Millisecond)}, opts...)
	d := chatsync.NewDirectory(backend, opts...)
	t.Cleanup(d.Close)
	return d, backend
}

func userPage(page, totalPages int, users ...chatsync.User) *chatsync.Page[chatsync.User] {
	return &chatsync.Page[chatsync.User]{
		Status:     "success",
		Data:       users,
		Pagination: chatsync.Pagination{CurrentPage: page, TotalPages: totalPages, TotalRecords: totalPages * 2},
	}
}

func groupPage(page, totalPages int, groups ...chatsync.Group) *chatsync.Page[chatsync.Group] {
	return &chatsync.Page[chatsync.Group]{
		Status:     "success",
		Data:       groups,
		Pagination: chatsync.Pagination{CurrentPage: page, TotalPages: totalPages, TotalRecords: totalPages * 2},
	}
}

func userIDs(users []chatsync.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

// ============================================================================
// Users
// ============================================================================

func TestDirectoryUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("loads chatted users by default", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		backend.EXPECT().
			GetUsers(gomock.Any(), chatsync.UserQuery{Page: 1, PageSize: 2, View: chatsync.ViewChatted}).
			Return(userPage(1, 2, chatsync.User{ID: "1"}, chatsync.User{ID: "2"}), nil)
		backend.EXPECT().
			GetUsers(gomock.Any(), chatsync.UserQuery{Page: 2, PageSize: 2, View: chatsync.ViewChatted}).
			Return(userPage(2, 2, chatsync.User{ID: "2"}, chatsync.User{ID: "3"}), nil)

		require.NoError(t, d.LoadUsers(ctx))
		require.NoError(t, d.MoreUsers(ctx))
		assert.Equal(t, []string{"1", "2", "3"}, userIDs(d.Users()))
		assert.False(t, d.UsersState().HasMore)

		// Past the last page nothing is fetched.
		require.NoError(t, d.MoreUsers(ctx))
	})

	t.Run("switching view reloads", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		gomock.InOrder(
			backend.EXPECT().
				GetUsers(gomock.Any(), gomock.Any()).
				Return(userPage(1, 1, chatsync.User{ID: "1"}), nil),
			backend.EXPECT().
				GetUsers(gomock.Any(), chatsync.UserQuery{Page: 1, PageSize: 2, View: chatsync.ViewAll}).
				Return(userPage(1, 1, chatsync.User{ID: "9"}), nil),
		)

		require.NoError(t, d.LoadUsers(ctx))
		require.NoError(t, d.SetUserView(ctx, chatsync.ViewAll))
		assert.Equal(t, chatsync.ViewAll, d.View())
		assert.Equal(t, []string{"9"}, userIDs(d.Users()))
	})

	t.Run("failure stops paging", func(t *testing.T) {
		boom := errors.New("boom")
		d, backend := makeTestDirectory(t)
		failed := make(chan error, 1)
		d.On(chatsync.EventFetchFailed, func(_ string, payload any) { failed <- payload.(error) })
		backend.EXPECT().GetUsers(gomock.Any(), gomock.Any()).Return(nil, boom)

		assert.ErrorIs(t, d.LoadUsers(ctx), boom)
		assert.ErrorIs(t, <-failed, boom)
		assert.Empty(t, d.Users())
		assert.False(t, d.UsersState().HasMore)
	})

	t.Run("frequent contacts", func(t *testing.T) {
		d, backend := makeTestDirectory(t, chatsync.WithDirectoryPageSize(10))
		backend.EXPECT().GetUsers(gomock.Any(), gomock.Any()).Return(userPage(1, 1,
			chatsync.User{ID: "1", LastMessage: "hi"},
			chatsync.User{ID: "2"},
			chatsync.User{ID: "3", LastMessage: "yo"},
			chatsync.User{ID: "4", LastMessage: "ok"},
			chatsync.User{ID: "5", LastMessage: "later"},
		), nil)

		require.NoError(t, d.LoadUsers(ctx))
		assert.Equal(t, []string{"1", "3", "4"}, userIDs(d.FrequentContacts()))
	})

	t.Run("filter", func(t *testing.T) {
		d, backend := makeTestDirectory(t, chatsync.WithDirectoryPageSize(10))
		backend.EXPECT().GetUsers(gomock.Any(), gomock.Any()).Return(userPage(1, 1,
			chatsync.User{ID: "1", Name: "Grace Hopper", Role: "admin"},
			chatsync.User{ID: "2", Name: "Ada", Email: "ada@example.com"},
			chatsync.User{ID: "3", Name: "Linus", Username: "torvalds"},
		), nil)

		require.NoError(t, d.LoadUsers(ctx))
		assert.Equal(t, []string{"1"}, userIDs(d.FilterUsers("ADMIN")))
		assert.Equal(t, []string{"2"}, userIDs(d.FilterUsers("example.com")))
		assert.Equal(t, []string{"3"}, userIDs(d.FilterUsers("torv")))
		assert.Len(t, d.FilterUsers(""), 3)
	})

	t.Run("candidate members", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		backend.EXPECT().
			GetUsers(gomock.Any(), chatsync.UserQuery{Page: 1, PageSize: chatsync.CandidateMembersLimit, Search: "gr", View: chatsync.ViewAll}).
			Return(userPage(1, 1, chatsync.User{ID: "1"}), nil)

		users, err := d.CandidateMembers(ctx, " gr ")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, userIDs(users))
		assert.Empty(t, d.Users())
	})

	t.Run("debounced search", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		changed := make(chan struct{}, 8)
		d.On(chatsync.EventUsersChanged, func(string, any) { changed <- struct{}{} })
		backend.EXPECT().
			GetUsers(gomock.Any(), chatsync.UserQuery{Page: 1, PageSize: 2, Search: "gra", View: chatsync.ViewChatted}).
			Return(userPage(1, 1, chatsync.User{ID: "1"}), nil)

		d.Search("g")
		d.Search("gr")
		d.Search("gra")
		require.Eventually(t, func() bool { return len(d.Users()) == 1 }, time.Second, 5*time.Millisecond)
		assert.NotEmpty(t, changed)
	})
}

// ============================================================================
// Groups
// ============================================================================

func TestDirectoryGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("create validates input", func(t *testing.T) {
		d, _ := makeTestDirectory(t)
		assert.Error(t, d.CreateGroup(ctx, "   ", []string{"1"}))
		assert.Error(t, d.CreateGroup(ctx, "Team", nil))
	})

	t.Run("create reloads groups", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		gomock.InOrder(
			backend.EXPECT().CreateGroup(gomock.Any(), "Team", []string{"1", "2"}).Return(nil),
			backend.EXPECT().
				GetGroups(gomock.Any(), chatsync.GroupQuery{Page: 1, Limit: 2}).
				Return(groupPage(1, 1, chatsync.Group{ID: "5", Name: "Team"}), nil),
		)

		require.NoError(t, d.CreateGroup(ctx, " Team ", []string{"1", "2"}))
		require.Len(t, d.Groups(), 1)
		assert.Equal(t, "Team", d.Groups()[0].Name)
	})

	t.Run("create failure skips reload", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		backend.EXPECT().CreateGroup(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&chatsync.APIError{Code: "error", Message: "name taken"})

		var apiErr *chatsync.APIError
		require.ErrorAs(t, d.CreateGroup(ctx, "Team", []string{"1"}), &apiErr)
	})

	t.Run("tabs", func(t *testing.T) {
		d, backend := makeTestDirectory(t)
		backend.EXPECT().
			GetGroups(gomock.Any(), chatsync.GroupQuery{Page: 1, Limit: 2}).
			Return(groupPage(1, 2, chatsync.Group{ID: "1", Name: "Ops", Description: "on call"}, chatsync.Group{ID: "2", Name: "Dev"}), nil)
		backend.EXPECT().
			GetGroups(gomock.Any(), chatsync.GroupQuery{Page: 2, Limit: 2}).
			Return(groupPage(2, 2, chatsync.Group{ID: "3", Name: "Design"}), nil)

		assert.Equal(t, chatsync.TabUsers, d.Tab())
		d.SetSearch(chatsync.TabGroups, "stale term")
		require.NoError(t, d.SetTab(ctx, chatsync.TabGroups))
		require.NoError(t, d.LoadMore(ctx))
		assert.Len(t, d.Groups(), 3)
		assert.Len(t, d.FilterGroups("CALL"), 1)
		assert.Len(t, d.FilterGroups("de"), 2)
	})
}
