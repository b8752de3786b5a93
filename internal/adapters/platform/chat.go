package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"whop-chat-bot/internal/domain"
)

const sendMessageMutation = `mutation SendMessage($input: SendMessageInput!) {
  sendMessage(input: $input)
}`

const createDMChannelMutation = `mutation CreateDmChannel($input: CreateDmChannelInput!) {
  createDmChannel(input: $input) { feedData { feed { id } } }
}`

const feedPostsQuery = `query FeedPosts($feedId: ID!, $feedType: FeedTypes!, $limit: Int, $direction: Direction) {
  feedPosts(feedId: $feedId, feedType: $feedType, limit: $limit, direction: $direction, includeDeleted: false, includeReactions: false) {
    posts { ... on DmsPost { id userId content createdAt feedId feedType isPosterAdmin mentionedUserIds } }
    users { id username name profilePic }
  }
}`

const processEntitiesMutation = `mutation MessagesProcessEntitiesMutation($input: ProcessEntitiesInput!) {
  processEntities(input: $input) { entities { id isDeleted syncError { message } } }
}`

// SendMessage отправляет текст, разбивая длинные сообщения на части.
func (c *Client) SendMessage(ctx context.Context, msg domain.OutgoingMessage) error {
	for _, part := range SplitMessage(msg.Text) {
		vars := map[string]any{"input": map[string]any{
			"feedId":   msg.FeedID,
			"feedType": string(msg.FeedType),
			"message":  part,
		}}
		if err := c.call(ctx, "SendMessage", sendMessageMutation, vars, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateDMChannel открывает личный канал и возвращает id его ленты.
func (c *Client) CreateDMChannel(ctx context.Context, userID string) (string, error) {
	var out struct {
		CreateDmChannel struct {
			FeedData struct {
				Feed struct {
					ID string `json:"id"`
				} `json:"feed"`
			} `json:"feedData"`
		} `json:"createDmChannel"`
	}
	vars := map[string]any{"input": map[string]any{"withUserIds": []string{userID}}}
	if err := c.call(ctx, "CreateDmChannel", createDMChannelMutation, vars, &out); err != nil {
		return "", err
	}
	id := out.CreateDmChannel.FeedData.Feed.ID
	if id == "" {
		return "", fmt.Errorf("platform CreateDmChannel: empty feed id for %s", userID)
	}
	return id, nil
}

type feedPostsData struct {
	FeedPosts struct {
		Posts []struct {
			ID        string `json:"id"`
			UserID    string `json:"userId"`
			Content   string `json:"content"`
			CreatedAt stamp  `json:"createdAt"`
		} `json:"posts"`
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"users"`
	} `json:"feedPosts"`
}

// ListFeedPosts возвращает последние сообщения ленты, новые первыми.
func (c *Client) ListFeedPosts(ctx context.Context, feedID string, feedType domain.FeedType, limit int) ([]domain.FeedPost, error) {
	var out feedPostsData
	vars := map[string]any{
		"feedId":    feedID,
		"feedType":  string(feedType),
		"limit":     limit,
		"direction": "desc",
	}
	if err := c.call(ctx, "FeedPosts", feedPostsQuery, vars, &out); err != nil {
		return nil, err
	}
	names := make(map[string]string, len(out.FeedPosts.Users))
	for _, u := range out.FeedPosts.Users {
		names[u.ID] = domain.UserInfo{ID: u.ID, Username: u.Username, Name: u.Name}.DisplayName()
	}
	posts := make([]domain.FeedPost, 0, len(out.FeedPosts.Posts))
	for _, p := range out.FeedPosts.Posts {
		if p.ID == "" {
			continue
		}
		posts = append(posts, domain.FeedPost{
			ID:        p.ID,
			UserID:    p.UserID,
			Username:  names[p.UserID],
			Content:   p.Content,
			CreatedAt: p.CreatedAt.Time(),
		})
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

// DeletePosts помечает сообщения удалёнными.
func (c *Client) DeletePosts(ctx context.Context, feedID string, feedType domain.FeedType, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	if c.appID == "" {
		return fmt.Errorf("platform delete posts: app id: %w", domain.ErrNotConfigured)
	}
	entities := make([]map[string]any, 0, len(postIDs))
	for _, id := range postIDs {
		entities = append(entities, map[string]any{
			"id":                  id,
			"feedId":              feedID,
			"feedType":            string(feedType),
			"isDeleted":           true,
			"content":             "",
			"mentionedUserIds":    []string{},
			"isEveryoneMentioned": false,
		})
	}
	var out struct {
		ProcessEntities struct {
			Entities []struct {
				ID        string `json:"id"`
				SyncError *struct {
					Message string `json:"message"`
				} `json:"syncError"`
			} `json:"entities"`
		} `json:"processEntities"`
	}
	vars := map[string]any{"input": map[string]any{"appId": c.appID, "dmsPosts": entities}}
	if err := c.call(ctx, "MessagesProcessEntitiesMutation", processEntitiesMutation, vars, &out); err != nil {
		return err
	}
	for _, e := range out.ProcessEntities.Entities {
		if e.SyncError != nil && e.SyncError.Message != "" {
			return fmt.Errorf("platform delete post %s: %s", e.ID, e.SyncError.Message)
		}
	}
	return nil
}

// scalar возвращает текстовое представление скалярного результата мутации.
func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
