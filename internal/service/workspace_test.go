package service

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

func TestCreateWorkspaceBootstrapsAdminAndGeneral(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")

	wsID := f.workspace(t, alice, "Acme")

	members, err := f.store.ListMembers(f.ctx, wsID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice, members[0].UserID)
	assert.Equal(t, model.RoleAdmin, members[0].Role)

	chans, err := f.store.ListChannels(f.ctx, wsID)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, "general", chans[0].Name)

	list, err := f.svc.ListWorkspaces(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme", list[0].Name)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-z]{6}$`), list[0].JoinCode)
}

func TestCreateWorkspaceValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateWorkspace(f.ctx, "", "Acme")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.CreateWorkspace(f.ctx, "alice", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CreateWorkspace(f.ctx, "alice", strings.Repeat("x", 81))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJoinWorkspace(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")
	require.NoError(t, f.store.UpdateJoinCode(f.ctx, wsID, "ab12cd"))

	t.Run("wrong code creates no member", func(t *testing.T) {
		_, err := f.svc.JoinWorkspace(f.ctx, bob, wsID, "zz99zz")
		require.ErrorIs(t, err, ErrInvalidJoinCode)
		_, err = f.store.GetMemberByUser(f.ctx, wsID, bob)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("code is case-insensitive", func(t *testing.T) {
		id, err := f.svc.JoinWorkspace(f.ctx, bob, wsID, "AB12CD")
		require.NoError(t, err)
		assert.Equal(t, wsID, id)
		m, err := f.store.GetMemberByUser(f.ctx, wsID, bob)
		require.NoError(t, err)
		assert.Equal(t, model.RoleMember, m.Role)
	})

	t.Run("second join fails", func(t *testing.T) {
		_, err := f.svc.JoinWorkspace(f.ctx, bob, wsID, "ab12cd")
		assert.ErrorIs(t, err, ErrAlreadyMember)
		members, err := f.store.ListMembers(f.ctx, wsID)
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		_, err := f.svc.JoinWorkspace(f.ctx, bob, "missing", "ab12cd")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.svc.JoinWorkspace(f.ctx, "", wsID, "ab12cd")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestNewJoinCodeAdminOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")
	f.join(t, wsID, bob)
	before, err := f.store.GetWorkspace(f.ctx, wsID)
	require.NoError(t, err)

	_, err = f.svc.NewJoinCode(f.ctx, bob, wsID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.NewJoinCode(f.ctx, alice, wsID)
	require.NoError(t, err)
	after, err := f.store.GetWorkspace(f.ctx, wsID)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-z]{6}$`, after.JoinCode)
	// код мог совпасть случайно с вероятностью 36^-6; проверяем только формат и что старый код перестал быть обязательным
	if after.JoinCode != before.JoinCode {
		carol := f.user(t, "carol", "Carol")
		_, err = f.svc.JoinWorkspace(f.ctx, carol, wsID, before.JoinCode)
		assert.ErrorIs(t, err, ErrInvalidJoinCode)
	}
}

func TestWorkspaceQueriesDegrade(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")

	list, err := f.svc.ListWorkspaces(f.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	w, err := f.svc.GetWorkspace(f.ctx, bob, wsID)
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = f.svc.GetWorkspace(f.ctx, alice, "missing")
	require.NoError(t, err)
	assert.Nil(t, w)

	info, err := f.svc.GetWorkspaceInfo(f.ctx, bob, wsID)
	require.NoError(t, err)
	assert.Equal(t, &model.WorkspaceInfo{Name: "Acme", IsMember: false}, info)

	info, err = f.svc.GetWorkspaceInfo(f.ctx, alice, wsID)
	require.NoError(t, err)
	assert.True(t, info.IsMember)

	info, err = f.svc.GetWorkspaceInfo(f.ctx, "", wsID)
	require.NoError(t, err)
	assert.Nil(t, info)

	u, err := f.svc.CurrentUser(f.ctx, "")
	require.NoError(t, err)
	assert.Nil(t, u)
	u, err = f.svc.CurrentUser(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
}

func TestUpdateWorkspaceInvalidatesList(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")
	f.join(t, wsID, bob)

	list, err := f.svc.ListWorkspaces(f.ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.svc.UpdateWorkspace(f.ctx, bob, wsID, "Hijacked")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.UpdateWorkspace(f.ctx, alice, wsID, "  Acme Corp ")
	require.NoError(t, err)

	list, err = f.svc.ListWorkspaces(f.ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme Corp", list[0].Name)
}

func TestRemoveWorkspaceCascades(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")
	other := f.workspace(t, alice, "Other")
	bobMember := f.join(t, wsID, bob)
	general := f.general(t, wsID)

	convID, err := f.svc.CreateOrGetConversation(f.ctx, alice, wsID, bobMember)
	require.NoError(t, err)
	root := f.post(t, alice, wsID, CreateMessageInput{ChannelID: &general})
	reply := f.post(t, bob, wsID, CreateMessageInput{ParentMessageID: &root})
	dm := f.post(t, bob, wsID, CreateMessageInput{ConversationID: &convID})
	_, err = f.svc.ToggleReaction(f.ctx, bob, root, "👍")
	require.NoError(t, err)
	keep := f.post(t, alice, other, CreateMessageInput{ChannelID: ptr(f.general(t, other))})

	_, err = f.svc.RemoveWorkspace(f.ctx, bob, wsID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.RemoveWorkspace(f.ctx, alice, wsID)
	require.NoError(t, err)

	_, err = f.store.GetWorkspace(f.ctx, wsID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetMember(f.ctx, bobMember)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetChannel(f.ctx, general)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetConversation(f.ctx, convID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	for _, id := range []string{root, reply, dm} {
		_, err = f.store.GetMessage(f.ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, id)
	}
	reactions, err := f.store.ListReactions(f.ctx, root)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	// соседний workspace не задет
	_, err = f.store.GetMessage(f.ctx, keep)
	assert.NoError(t, err)
	list, err := f.svc.ListWorkspaces(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other, list[0].ID)
	list, err = f.svc.ListWorkspaces(f.ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestJoinCodeHelpers(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateJoinCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9a-z]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 40)

	assert.True(t, joinCodeMatches("ab12cd", "AB12CD"))
	assert.True(t, joinCodeMatches("ab12cd", " ab12cd "))
	assert.False(t, joinCodeMatches("ab12cd", "ab12ce"))
}
