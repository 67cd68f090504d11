package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanSubscribe(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	carol := f.user(t, "carol", "Carol")
	eve := f.user(t, "eve", "Eve")
	wsID := f.workspace(t, alice, "Acme")
	bobMember := f.join(t, wsID, bob)
	f.join(t, wsID, carol)
	general := f.general(t, wsID)
	convID, err := f.svc.CreateOrGetConversation(f.ctx, alice, wsID, bobMember)
	require.NoError(t, err)

	cases := []struct {
		user, topic string
		want        bool
	}{
		{alice, "user:alice", true},
		{alice, "user:bob", false},
		{bob, "workspace:" + wsID, true},
		{eve, "workspace:" + wsID, false},
		{carol, "channel:" + general, true},
		{eve, "channel:" + general, false},
		{bob, "conversation:" + convID, true},
		{carol, "conversation:" + convID, false},
		{alice, "channel:missing", false},
		{alice, "bogus:" + wsID, false},
		{alice, "workspace:", false},
		{"", "workspace:" + wsID, false},
	}
	for _, tc := range cases {
		got, err := f.svc.CanSubscribe(f.ctx, tc.user, tc.topic)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.user, tc.topic)
	}
}

func TestGenerateUploadURL(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GenerateUploadURL(f.ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	target, err := f.svc.GenerateUploadURL(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", target.StorageID)

	noFiles := New(f.store, f.live, nil, 0)
	_, err = noFiles.GenerateUploadURL(f.ctx, "alice")
	assert.ErrorIs(t, err, ErrUploadsDisabled)
}

func TestSyncUserUpdatesProfile(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice", "Alice")
	f.user(t, "alice", "Alice Cooper")
	u, err := f.svc.CurrentUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", u.Name)
}
