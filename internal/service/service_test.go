package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage/memory"
)

type fakeFiles struct{}

func (fakeFiles) URL(_ context.Context, ref string) (string, error) {
	return "https://files.test/" + ref, nil
}

// Exists: загруженным считается только obj-1.
func (fakeFiles) Exists(_ context.Context, ref string) (bool, error) {
	return ref == "obj-1", nil
}

func (fakeFiles) NewUpload(_ context.Context) (*model.UploadTarget, error) {
	return &model.UploadTarget{URL: "https://files.test/upload/obj-1", Method: "PUT", StorageID: "obj-1"}, nil
}

type fixture struct {
	svc   *Service
	store *memory.Store
	live  *memory.Client
	ctx   context.Context
}

// newFixture — сервис на хранилищах в памяти с монотонными часами (шаг 1ms).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	live := memory.New()
	t.Cleanup(func() { live.Close() })
	svc := New(store, live, fakeFiles{}, time.Minute)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	svc.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Millisecond) }
	return &fixture{svc: svc, store: store, live: live, ctx: context.Background()}
}

// user регистрирует профиль пользователя (как сделал бы middleware авторизации).
func (f *fixture) user(t *testing.T, id, name string) string {
	t.Helper()
	require.NoError(t, f.svc.SyncUser(f.ctx, model.Principal{UserID: id, Name: name, Email: id + "@example.com", Image: "https://img/" + id}))
	return id
}

func (f *fixture) workspace(t *testing.T, owner, name string) string {
	t.Helper()
	id, err := f.svc.CreateWorkspace(f.ctx, owner, name)
	require.NoError(t, err)
	return id
}

// join добавляет userID в workspace по текущему коду и возвращает id участника.
func (f *fixture) join(t *testing.T, workspaceID, userID string) string {
	t.Helper()
	w, err := f.store.GetWorkspace(f.ctx, workspaceID)
	require.NoError(t, err)
	_, err = f.svc.JoinWorkspace(f.ctx, userID, workspaceID, w.JoinCode)
	require.NoError(t, err)
	return f.memberID(t, workspaceID, userID)
}

func (f *fixture) memberID(t *testing.T, workspaceID, userID string) string {
	t.Helper()
	m, err := f.store.GetMemberByUser(f.ctx, workspaceID, userID)
	require.NoError(t, err)
	return m.ID
}

func (f *fixture) general(t *testing.T, workspaceID string) string {
	t.Helper()
	chans, err := f.store.ListChannels(f.ctx, workspaceID)
	require.NoError(t, err)
	for _, c := range chans {
		if c.Name == defaultChannelName {
			return c.ID
		}
	}
	t.Fatalf("no general channel in %s", workspaceID)
	return ""
}

func (f *fixture) post(t *testing.T, userID, workspaceID string, in CreateMessageInput) string {
	t.Helper()
	in.WorkspaceID = workspaceID
	if in.Body == "" {
		in.Body = "hello"
	}
	id, err := f.svc.CreateMessage(f.ctx, userID, in)
	require.NoError(t, err)
	return id
}

func ptr(s string) *string { return &s }
