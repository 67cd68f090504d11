package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

func TestGroupReactions(t *testing.T) {
	rs := []model.Reaction{
		{MemberID: "m1", Value: "🎉"},
		{MemberID: "m2", Value: "👍"},
		{MemberID: "m1", Value: "👍"},
		{MemberID: "m2", Value: "👍"},
		{MemberID: "m3", Value: "🎉"},
	}
	got := GroupReactions(rs)
	assert.Equal(t, []model.ReactionGroup{
		{Value: "🎉", Count: 2, MemberIDs: []string{"m1", "m3"}},
		{Value: "👍", Count: 3, MemberIDs: []string{"m2", "m1"}},
	}, got)

	assert.Equal(t, []model.ReactionGroup{}, GroupReactions(nil))
}

func TestThreadSummaryEdgeCases(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	wsID := f.workspace(t, alice, "Acme")
	general := f.general(t, wsID)
	root := f.post(t, alice, wsID, CreateMessageInput{ChannelID: &general})
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	agg := f.svc.newAggregator(f.store)
	sum, err := agg.thread(f.ctx, root)
	require.NoError(t, err)
	assert.Equal(t, model.ThreadSummary{}, sum, "no replies")

	// последний ответ от участника без профиля пользователя: счётчик остаётся, имени нет
	require.NoError(t, f.store.CreateMember(f.ctx, &model.Member{ID: "ghost-member", UserID: "ghost-user", WorkspaceID: wsID, Role: model.RoleMember}))
	require.NoError(t, f.store.CreateMessage(f.ctx, &model.Message{ID: "r1", Body: "x", MemberID: "ghost-member", WorkspaceID: wsID, ChannelID: &general, ParentMessageID: &root, CreatedAt: at}))
	agg = f.svc.newAggregator(f.store)
	sum, err = agg.thread(f.ctx, root)
	require.NoError(t, err)
	assert.Equal(t, model.ThreadSummary{Count: 1}, sum)

	// последний ответ от удалённого участника: нулевая сводка
	require.NoError(t, f.store.CreateMessage(f.ctx, &model.Message{ID: "r2", Body: "y", MemberID: "no-such-member", WorkspaceID: wsID, ChannelID: &general, ParentMessageID: &root, CreatedAt: at.Add(time.Second)}))
	agg = f.svc.newAggregator(f.store)
	sum, err = agg.thread(f.ctx, root)
	require.NoError(t, err)
	assert.Equal(t, model.ThreadSummary{}, sum)
}

func TestCursorRoundTrip(t *testing.T) {
	c := storage.Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 123456000, time.UTC), ID: "m:1"}
	got, err := decodeCursor(encodeCursor(c))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, c.ID, got.ID)

	got, err = decodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"!!", "bm9jb2xvbg", "MTIzOg"} {
		_, err := decodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}

	assert.Equal(t, defaultPageSize, clampPageSize(0))
	assert.Equal(t, maxPageSize, clampPageSize(1000))
	assert.Equal(t, 7, clampPageSize(7))
}
