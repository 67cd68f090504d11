package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// Store — хранилище данных в памяти процесса (для тестов и запуска с -memory).
// Все операции сериализуются мьютексом; WithTx работает на копии и подменяет
// состояние только при успешном завершении fn.
type Store struct {
	mu sync.Mutex
	d  *dataset
}

func NewStore() *Store {
	return &Store{d: newDataset()}
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*dataset)(nil)
)

func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.d.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.d = draft
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpsertUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetUser(ctx, id)
}

func (s *Store) CreateWorkspace(ctx context.Context, w *model.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateWorkspace(ctx, w)
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetWorkspace(ctx, id)
}

func (s *Store) ListWorkspacesByUser(ctx context.Context, userID string) ([]model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListWorkspacesByUser(ctx, userID)
}

func (s *Store) UpdateWorkspaceName(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateWorkspaceName(ctx, id, name)
}

func (s *Store) UpdateJoinCode(ctx context.Context, id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateJoinCode(ctx, id, code)
}

func (s *Store) DeleteWorkspaceScope(ctx context.Context, id string) (storage.CascadeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteWorkspaceScope(ctx, id)
}

func (s *Store) CreateMember(ctx context.Context, m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateMember(ctx, m)
}

func (s *Store) GetMember(ctx context.Context, id string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetMember(ctx, id)
}

func (s *Store) GetMemberByUser(ctx context.Context, workspaceID, userID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetMemberByUser(ctx, workspaceID, userID)
}

func (s *Store) ListMembers(ctx context.Context, workspaceID string) ([]model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListMembers(ctx, workspaceID)
}

func (s *Store) UpdateMemberRole(ctx context.Context, id string, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateMemberRole(ctx, id, role)
}

func (s *Store) DeleteMemberScope(ctx context.Context, id string) (storage.CascadeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteMemberScope(ctx, id)
}

func (s *Store) CreateChannel(ctx context.Context, c *model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateChannel(ctx, c)
}

func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetChannel(ctx, id)
}

func (s *Store) ListChannels(ctx context.Context, workspaceID string) ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListChannels(ctx, workspaceID)
}

func (s *Store) UpdateChannelName(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateChannelName(ctx, id, name)
}

func (s *Store) DeleteChannelScope(ctx context.Context, id string) (storage.CascadeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteChannelScope(ctx, id)
}

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateConversation(ctx, c)
}

func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetConversation(ctx, id)
}

func (s *Store) FindConversation(ctx context.Context, workspaceID, memberA, memberB string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.FindConversation(ctx, workspaceID, memberA, memberB)
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateMessage(ctx, m)
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetMessage(ctx, id)
}

func (s *Store) UpdateMessageBody(ctx context.Context, id, body string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateMessageBody(ctx, id, body, at)
}

func (s *Store) DeleteMessage(ctx context.Context, id string) (storage.CascadeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteMessage(ctx, id)
}

func (s *Store) ListMessages(ctx context.Context, f storage.MessageFilter, after *storage.Cursor, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListMessages(ctx, f, after, limit)
}

func (s *Store) ThreadStats(ctx context.Context, parentID string) (int, *model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ThreadStats(ctx, parentID)
}

func (s *Store) ImageReferenced(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ImageReferenced(ctx, ref)
}

func (s *Store) CreateReaction(ctx context.Context, r *model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateReaction(ctx, r)
}

func (s *Store) FindReaction(ctx context.Context, messageID, memberID, value string) (*model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.FindReaction(ctx, messageID, memberID, value)
}

func (s *Store) ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListReactions(ctx, messageID)
}

func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteReaction(ctx, id)
}

// dataset — само состояние без блокировок; используется и как Tx внутри WithTx.
type dataset struct {
	users         map[string]model.User
	workspaces    map[string]model.Workspace
	members       map[string]model.Member
	channels      map[string]model.Channel
	conversations map[string]model.Conversation
	messages      map[string]model.Message
	reactions     map[string]model.Reaction
}

func newDataset() *dataset {
	return &dataset{
		users:         make(map[string]model.User),
		workspaces:    make(map[string]model.Workspace),
		members:       make(map[string]model.Member),
		channels:      make(map[string]model.Channel),
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string]model.Message),
		reactions:     make(map[string]model.Reaction),
	}
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (d *dataset) clone() *dataset {
	return &dataset{
		users:         cloneMap(d.users),
		workspaces:    cloneMap(d.workspaces),
		members:       cloneMap(d.members),
		channels:      cloneMap(d.channels),
		conversations: cloneMap(d.conversations),
		messages:      cloneMap(d.messages),
		reactions:     cloneMap(d.reactions),
	}
}

func (d *dataset) UpsertUser(_ context.Context, u *model.User) error {
	prev, ok := d.users[u.ID]
	if ok {
		u.CreatedAt = prev.CreatedAt
	}
	d.users[u.ID] = *u
	return nil
}

func (d *dataset) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (d *dataset) CreateWorkspace(_ context.Context, w *model.Workspace) error {
	if _, ok := d.workspaces[w.ID]; ok {
		return storage.ErrConflict
	}
	d.workspaces[w.ID] = *w
	return nil
}

func (d *dataset) GetWorkspace(_ context.Context, id string) (*model.Workspace, error) {
	w, ok := d.workspaces[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &w, nil
}

func (d *dataset) ListWorkspacesByUser(_ context.Context, userID string) ([]model.Workspace, error) {
	var mems []model.Member
	for _, m := range d.members {
		if m.UserID == userID {
			mems = append(mems, m)
		}
	}
	sortMembers(mems)
	out := make([]model.Workspace, 0, len(mems))
	for _, m := range mems {
		if w, ok := d.workspaces[m.WorkspaceID]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *dataset) UpdateWorkspaceName(_ context.Context, id, name string) error {
	w, ok := d.workspaces[id]
	if !ok {
		return storage.ErrNotFound
	}
	w.Name = name
	d.workspaces[id] = w
	return nil
}

func (d *dataset) UpdateJoinCode(_ context.Context, id, code string) error {
	w, ok := d.workspaces[id]
	if !ok {
		return storage.ErrNotFound
	}
	w.JoinCode = code
	d.workspaces[id] = w
	return nil
}

func (d *dataset) DeleteWorkspaceScope(_ context.Context, id string) (storage.CascadeStats, error) {
	var st storage.CascadeStats
	if _, ok := d.workspaces[id]; !ok {
		return st, storage.ErrNotFound
	}
	for k, r := range d.reactions {
		if r.WorkspaceID == id {
			delete(d.reactions, k)
			st.Reactions++
		}
	}
	for k, m := range d.messages {
		if m.WorkspaceID == id {
			delete(d.messages, k)
			st.Messages++
		}
	}
	for k, c := range d.conversations {
		if c.WorkspaceID == id {
			delete(d.conversations, k)
			st.Conversations++
		}
	}
	for k, c := range d.channels {
		if c.WorkspaceID == id {
			delete(d.channels, k)
			st.Channels++
		}
	}
	for k, m := range d.members {
		if m.WorkspaceID == id {
			delete(d.members, k)
			st.Members++
		}
	}
	delete(d.workspaces, id)
	return st, nil
}

func (d *dataset) CreateMember(_ context.Context, m *model.Member) error {
	for _, existing := range d.members {
		if existing.WorkspaceID == m.WorkspaceID && existing.UserID == m.UserID {
			return storage.ErrConflict
		}
	}
	d.members[m.ID] = *m
	return nil
}

func (d *dataset) GetMember(_ context.Context, id string) (*model.Member, error) {
	m, ok := d.members[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

func (d *dataset) GetMemberByUser(_ context.Context, workspaceID, userID string) (*model.Member, error) {
	for _, m := range d.members {
		if m.WorkspaceID == workspaceID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (d *dataset) ListMembers(_ context.Context, workspaceID string) ([]model.Member, error) {
	out := make([]model.Member, 0)
	for _, m := range d.members {
		if m.WorkspaceID == workspaceID {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out, nil
}

func (d *dataset) UpdateMemberRole(_ context.Context, id string, role model.Role) error {
	m, ok := d.members[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Role = role
	d.members[id] = m
	return nil
}

func (d *dataset) DeleteMemberScope(_ context.Context, id string) (storage.CascadeStats, error) {
	var st storage.CascadeStats
	if _, ok := d.members[id]; !ok {
		return st, storage.ErrNotFound
	}
	convs := make(map[string]struct{})
	for k, c := range d.conversations {
		if c.Involves(id) {
			convs[k] = struct{}{}
			delete(d.conversations, k)
			st.Conversations++
		}
	}
	doomed := make(map[string]struct{})
	for k, m := range d.messages {
		if m.MemberID == id {
			doomed[k] = struct{}{}
			continue
		}
		if m.ConversationID != nil {
			if _, ok := convs[*m.ConversationID]; ok {
				doomed[k] = struct{}{}
			}
		}
	}
	d.deleteMessages(doomed, &st)
	for k, r := range d.reactions {
		if r.MemberID == id {
			delete(d.reactions, k)
			st.Reactions++
		}
	}
	delete(d.members, id)
	st.Members++
	return st, nil
}

func (d *dataset) CreateChannel(_ context.Context, c *model.Channel) error {
	d.channels[c.ID] = *c
	return nil
}

func (d *dataset) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	c, ok := d.channels[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (d *dataset) ListChannels(_ context.Context, workspaceID string) ([]model.Channel, error) {
	out := make([]model.Channel, 0)
	for _, c := range d.channels {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *dataset) UpdateChannelName(_ context.Context, id, name string) error {
	c, ok := d.channels[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.Name = name
	d.channels[id] = c
	return nil
}

func (d *dataset) DeleteChannelScope(_ context.Context, id string) (storage.CascadeStats, error) {
	var st storage.CascadeStats
	if _, ok := d.channels[id]; !ok {
		return st, storage.ErrNotFound
	}
	doomed := make(map[string]struct{})
	for k, m := range d.messages {
		if m.ChannelID != nil && *m.ChannelID == id {
			doomed[k] = struct{}{}
		}
	}
	d.deleteMessages(doomed, &st)
	delete(d.channels, id)
	st.Channels++
	return st, nil
}

func (d *dataset) CreateConversation(_ context.Context, c *model.Conversation) error {
	for _, existing := range d.conversations {
		if existing.WorkspaceID == c.WorkspaceID && samePair(existing, c.MemberOneID, c.MemberTwoID) {
			return storage.ErrConflict
		}
	}
	d.conversations[c.ID] = *c
	return nil
}

func (d *dataset) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	c, ok := d.conversations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (d *dataset) FindConversation(_ context.Context, workspaceID, memberA, memberB string) (*model.Conversation, error) {
	for _, c := range d.conversations {
		if c.WorkspaceID == workspaceID && samePair(c, memberA, memberB) {
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (d *dataset) CreateMessage(_ context.Context, m *model.Message) error {
	d.messages[m.ID] = *m
	return nil
}

func (d *dataset) GetMessage(_ context.Context, id string) (*model.Message, error) {
	m, ok := d.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

func (d *dataset) UpdateMessageBody(_ context.Context, id, body string, at time.Time) error {
	m, ok := d.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Body = body
	m.UpdatedAt = &at
	d.messages[id] = m
	return nil
}

func (d *dataset) DeleteMessage(_ context.Context, id string) (storage.CascadeStats, error) {
	var st storage.CascadeStats
	if _, ok := d.messages[id]; !ok {
		return st, storage.ErrNotFound
	}
	d.deleteMessages(map[string]struct{}{id: {}}, &st)
	return st, nil
}

// deleteMessages удаляет сообщения из ids, все ответы на них и реакции.
func (d *dataset) deleteMessages(ids map[string]struct{}, st *storage.CascadeStats) {
	for grown := true; grown; {
		grown = false
		for k, m := range d.messages {
			if m.ParentMessageID == nil {
				continue
			}
			if _, parent := ids[*m.ParentMessageID]; !parent {
				continue
			}
			if _, seen := ids[k]; !seen {
				ids[k] = struct{}{}
				grown = true
			}
		}
	}
	for k := range ids {
		if _, ok := d.messages[k]; ok {
			delete(d.messages, k)
			st.Messages++
		}
	}
	for k, r := range d.reactions {
		if _, ok := ids[r.MessageID]; ok {
			delete(d.reactions, k)
			st.Reactions++
		}
	}
}

func (d *dataset) ListMessages(_ context.Context, f storage.MessageFilter, after *storage.Cursor, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range d.messages {
		if !sameRef(m.ChannelID, f.ChannelID) || !sameRef(m.ConversationID, f.ConversationID) || !sameRef(m.ParentMessageID, f.ParentMessageID) {
			continue
		}
		if after != nil && !olderThan(m, *after) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *dataset) ThreadStats(_ context.Context, parentID string) (int, *model.Message, error) {
	count := 0
	var last *model.Message
	for _, m := range d.messages {
		if m.ParentMessageID == nil || *m.ParentMessageID != parentID {
			continue
		}
		count++
		if last == nil || newer(m, *last) {
			cp := m
			last = &cp
		}
	}
	return count, last, nil
}

func (d *dataset) ImageReferenced(_ context.Context, ref string) (bool, error) {
	for _, m := range d.messages {
		if m.Image != nil && *m.Image == ref {
			return true, nil
		}
	}
	return false, nil
}

func (d *dataset) CreateReaction(_ context.Context, r *model.Reaction) error {
	d.reactions[r.ID] = *r
	return nil
}

func (d *dataset) FindReaction(_ context.Context, messageID, memberID, value string) (*model.Reaction, error) {
	for _, r := range d.reactions {
		if r.MessageID == messageID && r.MemberID == memberID && r.Value == value {
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (d *dataset) ListReactions(_ context.Context, messageID string) ([]model.Reaction, error) {
	out := make([]model.Reaction, 0)
	for _, r := range d.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *dataset) DeleteReaction(_ context.Context, id string) error {
	if _, ok := d.reactions[id]; !ok {
		return storage.ErrNotFound
	}
	delete(d.reactions, id)
	return nil
}

func sortMembers(ms []model.Member) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

// samePair — неупорядоченное сравнение пары участников переписки.
func samePair(c model.Conversation, a, b string) bool {
	return (c.MemberOneID == a && c.MemberTwoID == b) || (c.MemberOneID == b && c.MemberTwoID == a)
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// newer сравнивает в порядке ленты: (created_at DESC, id DESC).
func newer(a, b model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func olderThan(m model.Message, c storage.Cursor) bool {
	if !m.CreatedAt.Equal(c.CreatedAt) {
		return m.CreatedAt.Before(c.CreatedAt)
	}
	return m.ID < c.ID
}
