package storage

import (
	"context"
	"errors"
	"time"

	"github.com/teamchat/internal/model"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrConflict — нарушено ограничение уникальности (member, conversation).
	ErrConflict = errors.New("conflict")
)

// MessageFilter задаёт контейнер ленты. Поля сравниваются как есть, включая nil:
// лента канала требует ParentMessageID == nil, лента треда требует конкретный ParentMessageID.
type MessageFilter struct {
	ChannelID       *string
	ConversationID  *string
	ParentMessageID *string
}

// Cursor — позиция последней выданной строки в порядке (created_at DESC, id DESC).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CascadeStats — сколько строк удалено каскадом.
type CascadeStats struct {
	Members       int64
	Channels      int64
	Conversations int64
	Messages      int64
	Reactions     int64
}

// Tx — операции над данными. Реализации: repository.Store (Postgres), memory.Store (тесты, -memory).
// Один и тот же набор методов доступен и вне транзакции, и внутри WithTx.
type Tx interface {
	UpsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)

	CreateWorkspace(ctx context.Context, w *model.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	ListWorkspacesByUser(ctx context.Context, userID string) ([]model.Workspace, error)
	UpdateWorkspaceName(ctx context.Context, id, name string) error
	UpdateJoinCode(ctx context.Context, id, code string) error
	// DeleteWorkspaceScope удаляет workspace и всё, что к нему относится.
	DeleteWorkspaceScope(ctx context.Context, id string) (CascadeStats, error)

	// CreateMember возвращает ErrConflict, если пользователь уже состоит в workspace.
	CreateMember(ctx context.Context, m *model.Member) error
	GetMember(ctx context.Context, id string) (*model.Member, error)
	GetMemberByUser(ctx context.Context, workspaceID, userID string) (*model.Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]model.Member, error)
	UpdateMemberRole(ctx context.Context, id string, role model.Role) error
	// DeleteMemberScope удаляет участника, его сообщения, реакции и личные переписки.
	DeleteMemberScope(ctx context.Context, id string) (CascadeStats, error)

	CreateChannel(ctx context.Context, c *model.Channel) error
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	ListChannels(ctx context.Context, workspaceID string) ([]model.Channel, error)
	UpdateChannelName(ctx context.Context, id, name string) error
	// DeleteChannelScope удаляет канал, его сообщения и их реакции.
	DeleteChannelScope(ctx context.Context, id string) (CascadeStats, error)

	// CreateConversation возвращает ErrConflict, если пара участников уже занята (в любом порядке).
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	FindConversation(ctx context.Context, workspaceID, memberA, memberB string) (*model.Conversation, error)

	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	UpdateMessageBody(ctx context.Context, id, body string, at time.Time) error
	// DeleteMessage удаляет сообщение, ответы на него и реакции на всё удалённое.
	DeleteMessage(ctx context.Context, id string) (CascadeStats, error)
	// ListMessages возвращает до limit сообщений строго после cursor, новые первыми.
	ListMessages(ctx context.Context, f MessageFilter, after *Cursor, limit int) ([]model.Message, error)
	// ThreadStats возвращает число ответов на сообщение и самый свежий ответ (nil, если ответов нет).
	ThreadStats(ctx context.Context, parentID string) (int, *model.Message, error)
	ImageReferenced(ctx context.Context, ref string) (bool, error)

	CreateReaction(ctx context.Context, r *model.Reaction) error
	FindReaction(ctx context.Context, messageID, memberID, value string) (*model.Reaction, error)
	ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error)
	DeleteReaction(ctx context.Context, id string) error
}

// Store — Tx плюс транзакционная граница. fn выполняется атомарно: при ошибке ничего не сохраняется.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Event — уведомление об изменении данных, относящихся к topic
// (например "channel:<id>", "workspace:<id>", "user:<id>").
type Event struct {
	Topic string `json:"topic"`
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
}

// Snapshot — поколения topic на момент перед чтением из БД. Invalidate увеличивает поколение своего topic.
type Snapshot map[string]int64

// LiveStore — кеш результатов запросов с тегами по topic и шина инвалидаций.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type LiveStore interface {
	// GetCached читает значение по ключу в dst. false при промахе.
	GetCached(ctx context.Context, key string, dst any) (bool, error)
	// Snapshot возвращает текущие поколения topics. Берётся до загрузки данных из БД.
	Snapshot(ctx context.Context, topics ...string) (Snapshot, error)
	// SetCached кладёт значение с TTL и привязывает ключ ко всем topic из snap, но только если
	// ни один из них не инвалидирован после snap. false — значение устарело и не сохранено.
	SetCached(ctx context.Context, key string, val any, ttl time.Duration, snap Snapshot) (bool, error)
	// Invalidate удаляет все ключи, привязанные к ev.Topic, увеличивает его поколение и публикует ev подписчикам.
	Invalidate(ctx context.Context, ev Event) error
	// Subscribe возвращает канал событий; канал закрывается после отмены ctx.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}
