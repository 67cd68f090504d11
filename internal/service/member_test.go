package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

func TestMemberQueries(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	eve := f.user(t, "eve", "Eve")
	wsID := f.workspace(t, alice, "Acme")
	bobMember := f.join(t, wsID, bob)

	list, err := f.svc.ListMembers(f.ctx, bob, wsID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].User.Name)
	assert.Equal(t, "Bob", list[1].User.Name)

	list, err = f.svc.ListMembers(f.ctx, eve, wsID)
	require.NoError(t, err)
	assert.Empty(t, list)

	cur, err := f.svc.CurrentMember(f.ctx, bob, wsID)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, bobMember, cur.ID)

	cur, err = f.svc.CurrentMember(f.ctx, eve, wsID)
	require.NoError(t, err)
	assert.Nil(t, cur)

	got, err := f.svc.GetMember(f.ctx, alice, bobMember)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob@example.com", got.User.Email)

	got, err = f.svc.GetMember(f.ctx, eve, bobMember)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")
	bobMember := f.join(t, wsID, bob)

	_, err := f.svc.UpdateMemberRole(f.ctx, bob, bobMember, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.UpdateMemberRole(f.ctx, alice, bobMember, "owner")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateMemberRole(f.ctx, alice, bobMember, model.RoleAdmin)
	require.NoError(t, err)
	list, err := f.svc.ListMembers(f.ctx, alice, wsID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.RoleAdmin, list[1].Role, "members list is invalidated")
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	wsID := f.workspace(t, alice, "Acme")
	aliceMember := f.memberID(t, wsID, alice)
	bobMember := f.join(t, wsID, bob)

	_, err := f.svc.UpdateMemberRole(f.ctx, alice, aliceMember, model.RoleMember)
	assert.ErrorIs(t, err, ErrInvalidInput)
	m, err := f.store.GetMember(f.ctx, aliceMember)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, m.Role)

	// with a second admin the first may step down
	_, err = f.svc.UpdateMemberRole(f.ctx, alice, bobMember, model.RoleAdmin)
	require.NoError(t, err)
	_, err = f.svc.UpdateMemberRole(f.ctx, alice, aliceMember, model.RoleMember)
	require.NoError(t, err)

	_, err = f.svc.UpdateMemberRole(f.ctx, bob, bobMember, model.RoleMember)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	carol := f.user(t, "carol", "Carol")
	wsID := f.workspace(t, alice, "Acme")
	aliceMember := f.memberID(t, wsID, alice)
	bobMember := f.join(t, wsID, bob)
	carolMember := f.join(t, wsID, carol)
	general := f.general(t, wsID)

	convID, err := f.svc.CreateOrGetConversation(f.ctx, alice, wsID, bobMember)
	require.NoError(t, err)
	dm := f.post(t, alice, wsID, CreateMessageInput{ConversationID: &convID})
	bobsPost := f.post(t, bob, wsID, CreateMessageInput{ChannelID: &general})
	alicePost := f.post(t, alice, wsID, CreateMessageInput{ChannelID: &general})
	_, err = f.svc.ToggleReaction(f.ctx, bob, alicePost, "👍")
	require.NoError(t, err)

	_, err = f.svc.RemoveMember(f.ctx, carol, bobMember)
	assert.ErrorIs(t, err, ErrUnauthorized, "plain member cannot remove others")

	_, err = f.svc.RemoveMember(f.ctx, bob, aliceMember)
	assert.ErrorIs(t, err, ErrUnauthorized, "admin cannot be removed")

	_, err = f.svc.RemoveMember(f.ctx, carol, carolMember)
	require.NoError(t, err, "member leaves on their own")

	_, err = f.svc.RemoveMember(f.ctx, alice, bobMember)
	require.NoError(t, err)

	for _, id := range []string{dm, bobsPost} {
		_, err = f.store.GetMessage(f.ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, id)
	}
	_, err = f.store.GetConversation(f.ctx, convID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetMessage(f.ctx, alicePost)
	assert.NoError(t, err)
	rs, err := f.store.ListReactions(f.ctx, alicePost)
	require.NoError(t, err)
	assert.Empty(t, rs)

	list, err := f.svc.ListMembers(f.ctx, alice, wsID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
