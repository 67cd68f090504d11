package model

import "time"

type Message struct {
	ID              string     `json:"id"`
	Body            string     `json:"body"`
	Image           *string    `json:"-"`
	MemberID        string     `json:"member_id"`
	WorkspaceID     string     `json:"workspace_id"`
	ChannelID       *string    `json:"channel_id,omitempty"`
	ConversationID  *string    `json:"conversation_id,omitempty"`
	ParentMessageID *string    `json:"parent_message_id,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Reaction struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	MessageID   string    `json:"message_id"`
	MemberID    string    `json:"member_id"`
	Value       string    `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReactionGroup is aggregated reaction info for display.
// Count is the raw number of reactions with Value; MemberIDs is deduplicated.
type ReactionGroup struct {
	Value     string   `json:"value"`
	Count     int      `json:"count"`
	MemberIDs []string `json:"member_ids"`
}

// ThreadSummary describes replies to a message. Zero value means no replies.
type ThreadSummary struct {
	Count     int
	Image     string
	Name      string
	Timestamp *time.Time
}

// MessageView is a message joined with its author, reactions and thread summary.
type MessageView struct {
	Message
	ImageURL        string          `json:"image,omitempty"`
	Member          Member          `json:"member"`
	User            User            `json:"user"`
	Reactions       []ReactionGroup `json:"reactions"`
	ThreadCount     int             `json:"thread_count"`
	ThreadImage     string          `json:"thread_image,omitempty"`
	ThreadName      string          `json:"thread_name,omitempty"`
	ThreadTimestamp *time.Time      `json:"thread_timestamp,omitempty"`
}

type PageStatus string

const (
	PageLoadingFirstPage PageStatus = "LoadingFirstPage"
	PageCanLoadMore      PageStatus = "CanLoadMore"
	PageLoadingMore      PageStatus = "LoadingMore"
	PageExhausted        PageStatus = "Exhausted"
)

// MessagePage is one slice of a newest-first message feed.
type MessagePage struct {
	Page           []MessageView `json:"page"`
	ContinueCursor string        `json:"continue_cursor"`
	IsDone         bool          `json:"is_done"`
	Status         PageStatus    `json:"status"`
}
