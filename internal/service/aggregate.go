package service

import (
	"context"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// GroupReactions folds reactions by value in first-seen order. Count is the raw number
// of reactions with that value; MemberIDs lists each reacting member once.
func GroupReactions(rs []model.Reaction) []model.ReactionGroup {
	groups := make([]model.ReactionGroup, 0)
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})
	for _, r := range rs {
		i, ok := index[r.Value]
		if !ok {
			i = len(groups)
			index[r.Value] = i
			groups = append(groups, model.ReactionGroup{Value: r.Value, MemberIDs: []string{}})
			seen[r.Value] = make(map[string]struct{})
		}
		groups[i].Count++
		if _, dup := seen[r.Value][r.MemberID]; !dup {
			seen[r.Value][r.MemberID] = struct{}{}
			groups[i].MemberIDs = append(groups[i].MemberIDs, r.MemberID)
		}
	}
	return groups
}

// aggregator joins messages with authors, reactions and thread summaries.
// Members and users are memoized for the lifetime of one page.
type aggregator struct {
	tx      storage.Tx
	files   Files
	members map[string]*model.Member
	users   map[string]*model.User
}

func (s *Service) newAggregator(tx storage.Tx) *aggregator {
	return &aggregator{
		tx:      tx,
		files:   s.files,
		members: make(map[string]*model.Member),
		users:   make(map[string]*model.User),
	}
}

func (a *aggregator) member(ctx context.Context, id string) (*model.Member, error) {
	if m, ok := a.members[id]; ok {
		return m, nil
	}
	m, err := optional(a.tx.GetMember(ctx, id))
	if err != nil {
		return nil, err
	}
	a.members[id] = m
	return m, nil
}

func (a *aggregator) user(ctx context.Context, id string) (*model.User, error) {
	if u, ok := a.users[id]; ok {
		return u, nil
	}
	u, err := optional(a.tx.GetUser(ctx, id))
	if err != nil {
		return nil, err
	}
	a.users[id] = u
	return u, nil
}

// author resolves the member and user who wrote m. nil means one of them is gone.
func (a *aggregator) author(ctx context.Context, memberID string) (*model.Member, *model.User, error) {
	m, err := a.member(ctx, memberID)
	if m == nil || err != nil {
		return nil, nil, err
	}
	u, err := a.user(ctx, m.UserID)
	if u == nil || err != nil {
		return nil, nil, err
	}
	return m, u, nil
}

// thread summarizes replies to parentID: count plus the newest reply's author and time.
// If the newest reply's member is gone the summary is zero; if only the user is gone
// the count is kept without name, image and timestamp.
func (a *aggregator) thread(ctx context.Context, parentID string) (model.ThreadSummary, error) {
	count, last, err := a.tx.ThreadStats(ctx, parentID)
	if err != nil || count == 0 || last == nil {
		return model.ThreadSummary{}, err
	}
	m, err := a.member(ctx, last.MemberID)
	if m == nil || err != nil {
		return model.ThreadSummary{}, err
	}
	u, err := a.user(ctx, m.UserID)
	if err != nil {
		return model.ThreadSummary{}, err
	}
	if u == nil {
		return model.ThreadSummary{Count: count}, nil
	}
	ts := last.CreatedAt
	return model.ThreadSummary{Count: count, Image: u.Image, Name: u.Name, Timestamp: &ts}, nil
}

func (a *aggregator) imageURL(ctx context.Context, m *model.Message) string {
	if m.Image == nil || *m.Image == "" || a.files == nil {
		return ""
	}
	u, err := a.files.URL(ctx, *m.Image)
	if err != nil {
		logger.Errorf("aggregate: image url for message %s: %v", m.ID, err)
		return ""
	}
	return u
}

// view builds the display form of m, or returns nil when its author cannot be resolved.
func (a *aggregator) view(ctx context.Context, m model.Message) (*model.MessageView, error) {
	member, user, err := a.author(ctx, m.MemberID)
	if member == nil || err != nil {
		return nil, err
	}
	reactions, err := a.tx.ListReactions(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	thread, err := a.thread(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return &model.MessageView{
		Message:         m,
		ImageURL:        a.imageURL(ctx, &m),
		Member:          *member,
		User:            *user,
		Reactions:       GroupReactions(reactions),
		ThreadCount:     thread.Count,
		ThreadImage:     thread.Image,
		ThreadName:      thread.Name,
		ThreadTimestamp: thread.Timestamp,
	}, nil
}
