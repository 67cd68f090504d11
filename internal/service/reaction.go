package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

const maxReactionLen = 64

// ToggleReaction ставит реакцию value от вызывающего на сообщение или снимает уже поставленную.
// Возвращает id созданной или удалённой реакции.
func (s *Service) ToggleReaction(ctx context.Context, userID, messageID, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || utf8.RuneCountInString(value) > maxReactionLen {
		return "", fmt.Errorf("%w: reaction value must be 1..%d characters", ErrInvalidInput, maxReactionLen)
	}
	var (
		msg *model.Message
		id  string
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if msg, err = tx.GetMessage(ctx, messageID); err != nil {
			return notFound(err, "message")
		}
		member, err := requireMember(ctx, tx, msg.WorkspaceID, userID)
		if err != nil {
			return err
		}
		if msg.ConversationID != nil {
			if _, err := conversationFor(ctx, tx, *msg.ConversationID, member); err != nil {
				return err
			}
		}
		existing, err := tx.FindReaction(ctx, messageID, member.ID, value)
		if err == nil {
			id = existing.ID
			return tx.DeleteReaction(ctx, existing.ID)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		r := &model.Reaction{
			ID:          s.newID(),
			WorkspaceID: msg.WorkspaceID,
			MessageID:   messageID,
			MemberID:    member.ID,
			Value:       value,
			CreatedAt:   s.timestamp(),
		}
		id = r.ID
		return tx.CreateReaction(ctx, r)
	})
	if err != nil {
		return "", err
	}
	s.publishMessage(ctx, msg, KindReactionToggled)
	return id, nil
}
