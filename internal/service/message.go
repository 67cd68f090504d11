package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// CreateMessageInput — аргументы messages.create. Image — ссылка на загруженный файл (storage id).
type CreateMessageInput struct {
	Body            string
	Image           *string
	WorkspaceID     string
	ChannelID       *string
	ConversationID  *string
	ParentMessageID *string
}

// MessageQuery — аргументы messages.get. Задаётся канал, переписка или тред (ParentMessageID);
// при пустом Cursor возвращается первая страница.
type MessageQuery struct {
	ChannelID       *string
	ConversationID  *string
	ParentMessageID *string
	Cursor          string
	Limit           int
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return p
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func validBody(body string, image *string) error {
	if strings.TrimSpace(body) == "" && image == nil {
		return fmt.Errorf("%w: message body is empty", ErrInvalidInput)
	}
	return nil
}

// containerTopic — topic ленты, в которую попадает сообщение.
func containerTopic(channelID, conversationID *string) string {
	if channelID != nil {
		return topic(TopicChannel, *channelID)
	}
	if conversationID != nil {
		return topic(TopicConversation, *conversationID)
	}
	return ""
}

func (s *Service) publishMessage(ctx context.Context, m *model.Message, kind string) {
	if t := containerTopic(m.ChannelID, m.ConversationID); t != "" {
		s.publish(ctx, t, kind, m.ID)
		return
	}
	s.publish(ctx, topic(TopicWorkspace, m.WorkspaceID), kind, m.ID)
}

// CreateMessage пишет сообщение в канал, переписку или тред. Ответ без явного контейнера
// наследует канал и переписку родительского сообщения.
func (s *Service) CreateMessage(ctx context.Context, userID string, in CreateMessageInput) (string, error) {
	defer logger.DeferLogDuration("service.CreateMessage", time.Now())()
	in.Image = nonEmpty(in.Image)
	in.ChannelID = nonEmpty(in.ChannelID)
	in.ConversationID = nonEmpty(in.ConversationID)
	in.ParentMessageID = nonEmpty(in.ParentMessageID)
	if err := validBody(in.Body, in.Image); err != nil {
		return "", err
	}
	if in.ChannelID != nil && in.ConversationID != nil {
		return "", fmt.Errorf("%w: message cannot belong to both a channel and a conversation", ErrInvalidInput)
	}
	if in.Image != nil {
		if err := s.checkImage(ctx, *in.Image); err != nil {
			return "", err
		}
	}

	msg := &model.Message{
		ID:              s.newID(),
		Body:            in.Body,
		Image:           in.Image,
		WorkspaceID:     in.WorkspaceID,
		ChannelID:       in.ChannelID,
		ConversationID:  in.ConversationID,
		ParentMessageID: in.ParentMessageID,
		CreatedAt:       s.timestamp(),
	}
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		member, err := requireMember(ctx, tx, in.WorkspaceID, userID)
		if err != nil {
			return err
		}
		msg.MemberID = member.ID

		if in.ParentMessageID != nil {
			parent, err := tx.GetMessage(ctx, *in.ParentMessageID)
			if err != nil {
				return notFound(err, "parent message")
			}
			if parent.WorkspaceID != in.WorkspaceID {
				return notFound(storage.ErrNotFound, "parent message")
			}
			if msg.ChannelID == nil && msg.ConversationID == nil {
				msg.ChannelID, msg.ConversationID = parent.ChannelID, parent.ConversationID
			} else if !sameRef(msg.ChannelID, parent.ChannelID) || !sameRef(msg.ConversationID, parent.ConversationID) {
				return fmt.Errorf("%w: reply must stay in the parent message's channel or conversation", ErrInvalidInput)
			}
		}

		switch {
		case msg.ChannelID != nil:
			c, err := tx.GetChannel(ctx, *msg.ChannelID)
			if err != nil {
				return notFound(err, "channel")
			}
			if c.WorkspaceID != in.WorkspaceID {
				return notFound(storage.ErrNotFound, "channel")
			}
		case msg.ConversationID != nil:
			if _, err := conversationFor(ctx, tx, *msg.ConversationID, member); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: message needs a channel, conversation or parent message", ErrInvalidInput)
		}
		return tx.CreateMessage(ctx, msg)
	})
	if err != nil {
		return "", err
	}
	s.publishMessage(ctx, msg, KindMessageCreated)
	return msg.ID, nil
}

func exhaustedPage(cursor string) *model.MessagePage {
	return &model.MessagePage{
		Page:           []model.MessageView{},
		ContinueCursor: cursor,
		IsDone:         true,
		Status:         model.PageExhausted,
	}
}

// feedScope — фильтр ленты и workspace, которому она принадлежит. nil — ленты нет или она недоступна.
func (s *Service) feedScope(ctx context.Context, userID string, q MessageQuery) (*storage.MessageFilter, string, error) {
	f := storage.MessageFilter{ChannelID: q.ChannelID, ConversationID: q.ConversationID, ParentMessageID: q.ParentMessageID}
	var workspaceID string

	if f.ChannelID == nil && f.ConversationID == nil {
		// Тред без явного контейнера: контейнер берётся у родителя. Если родителя нет, NotFound.
		parent, err := s.store.GetMessage(ctx, *f.ParentMessageID)
		if err != nil {
			return nil, "", notFound(err, "parent message")
		}
		f.ChannelID, f.ConversationID = parent.ChannelID, parent.ConversationID
		workspaceID = parent.WorkspaceID
	}

	var conv *model.Conversation
	switch {
	case f.ChannelID != nil:
		c, err := optional(s.store.GetChannel(ctx, *f.ChannelID))
		if c == nil || err != nil {
			return nil, "", err
		}
		workspaceID = c.WorkspaceID
	case f.ConversationID != nil:
		c, err := optional(s.store.GetConversation(ctx, *f.ConversationID))
		if c == nil || err != nil {
			return nil, "", err
		}
		conv = c
		workspaceID = c.WorkspaceID
	}

	member, err := memberOrNil(ctx, s.store, workspaceID, userID)
	if member == nil || err != nil {
		return nil, "", err
	}
	if conv != nil && !conv.Involves(member.ID) {
		return nil, "", nil
	}
	return &f, workspaceID, nil
}

func feedKey(f storage.MessageFilter, cursor string, limit int) string {
	ref := func(p *string) string {
		if p == nil {
			return "-"
		}
		return *p
	}
	return "feed:" + ref(f.ChannelID) + ":" + ref(f.ConversationID) + ":" + ref(f.ParentMessageID) +
		":" + strconv.Itoa(limit) + ":" + cursor
}

// GetMessages — messages.get: страница ленты, новые сверху. Анонимному вызову и вызову без доступа
// к ленте отдаётся пустая завершённая страница.
func (s *Service) GetMessages(ctx context.Context, userID string, q MessageQuery) (*model.MessagePage, error) {
	defer logger.DeferLogDuration("service.GetMessages", time.Now())()
	q.ChannelID = nonEmpty(q.ChannelID)
	q.ConversationID = nonEmpty(q.ConversationID)
	q.ParentMessageID = nonEmpty(q.ParentMessageID)
	if q.ChannelID == nil && q.ConversationID == nil && q.ParentMessageID == nil {
		return nil, fmt.Errorf("%w: channel_id, conversation_id or parent_message_id is required", ErrInvalidInput)
	}
	after, err := decodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return exhaustedPage(q.Cursor), nil
	}
	f, workspaceID, err := s.feedScope(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return exhaustedPage(q.Cursor), nil
	}

	limit := clampPageSize(q.Limit)
	topics := []string{topic(TopicWorkspace, workspaceID)}
	if t := containerTopic(f.ChannelID, f.ConversationID); t != "" {
		topics = append(topics, t)
	}
	page, err := cachedQuery(ctx, s, "messages.get", feedKey(*f, q.Cursor, limit), topics, func() (*model.MessagePage, error) {
		return s.loadPage(ctx, *f, after, q.Cursor, limit)
	})
	if err != nil {
		return nil, err
	}
	if page.Page == nil {
		page.Page = []model.MessageView{}
	}
	return page, nil
}

func (s *Service) loadPage(ctx context.Context, f storage.MessageFilter, after *storage.Cursor, cursor string, limit int) (*model.MessagePage, error) {
	rows, err := s.store.ListMessages(ctx, f, after, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	agg := s.newAggregator(s.store)
	page := &model.MessagePage{Page: make([]model.MessageView, 0, len(rows)), ContinueCursor: cursor}
	for _, m := range rows {
		v, err := agg.view(ctx, m)
		if err != nil {
			return nil, err
		}
		if v != nil {
			page.Page = append(page.Page, *v)
		}
	}
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		page.ContinueCursor = encodeCursor(storage.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	page.IsDone = !hasMore
	page.Status = model.PageCanLoadMore
	if page.IsDone {
		page.Status = model.PageExhausted
	}
	return page, nil
}

// GetMessageByID — messages.getById: агрегированное сообщение или nil, если оно недоступно вызывающему.
func (s *Service) GetMessageByID(ctx context.Context, userID, messageID string) (*model.MessageView, error) {
	if userID == "" {
		return nil, nil
	}
	m, err := optional(s.store.GetMessage(ctx, messageID))
	if m == nil || err != nil {
		return nil, err
	}
	member, err := memberOrNil(ctx, s.store, m.WorkspaceID, userID)
	if member == nil || err != nil {
		return nil, err
	}
	if m.ConversationID != nil {
		c, err := optional(s.store.GetConversation(ctx, *m.ConversationID))
		if c == nil || err != nil || !c.Involves(member.ID) {
			return nil, err
		}
	}
	return s.newAggregator(s.store).view(ctx, *m)
}

// authoredMessage загружает сообщение и проверяет, что его написал вызывающий. Роль не даёт исключений.
func authoredMessage(ctx context.Context, tx storage.Tx, userID, messageID string) (*model.Message, error) {
	m, err := tx.GetMessage(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message")
	}
	member, err := requireMember(ctx, tx, m.WorkspaceID, userID)
	if err != nil {
		return nil, err
	}
	if member.ID != m.MemberID {
		return nil, fmt.Errorf("%w: only the author can change a message", ErrUnauthorized)
	}
	return m, nil
}

// UpdateMessage меняет текст сообщения и ставит updated_at. Только автор.
func (s *Service) UpdateMessage(ctx context.Context, userID, messageID, body string) (string, error) {
	var msg *model.Message
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if msg, err = authoredMessage(ctx, tx, userID, messageID); err != nil {
			return err
		}
		if err := validBody(body, msg.Image); err != nil {
			return err
		}
		return tx.UpdateMessageBody(ctx, messageID, body, s.timestamp())
	})
	if err != nil {
		return "", err
	}
	s.publishMessage(ctx, msg, KindMessageUpdated)
	return messageID, nil
}

// RemoveMessage удаляет сообщение вместе с ответами и реакциями. Только автор.
// Файл картинки остаётся в хранилище до очистки janitor.
func (s *Service) RemoveMessage(ctx context.Context, userID, messageID string) (string, error) {
	var msg *model.Message
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if msg, err = authoredMessage(ctx, tx, userID, messageID); err != nil {
			return err
		}
		_, err = tx.DeleteMessage(ctx, messageID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.publishMessage(ctx, msg, KindMessageDeleted)
	return messageID, nil
}
