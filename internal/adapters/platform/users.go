package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whop-chat-bot/internal/domain"
)

const getUserQuery = `query GetUser($id: ID!) {
  publicUser(id: $id) { id username name profilePic createdAt }
}`

const getUserEarningsQuery = `query GetUserEarnings($id: ID!) {
  publicUser(id: $id) { id username earningsReports { nodes { earningsType last24Hours last7Days last30Days lifetime } } }
}`

const getUserReferralsQuery = `query GetUserReferrals($publicUserId: ID!) {
  publicUser(id: $publicUserId) { primaryUserReferralCountLast24Hours }
}`

const banUserMutation = `mutation banUser($input: BanUserInput!) { banUser(input: $input) }`

const unbanUserMutation = `mutation unbanUser($input: UnbanUserInput!) { unbanUser(input: $input) }`

const muteUserMutation = `mutation CreateCompanyMutedUser($input: CreateCompanyMutedUserInput!) {
  createCompanyMutedUser(input: $input)
}`

const unmuteUserMutation = `mutation DeleteCompanyMutedUser($input: DeleteCompanyMutedUserInput!) {
  deleteCompanyMutedUser(input: $input)
}`

const kickUserMutation = `mutation KickFromAWhop($input: KickFromAWhopInput!) { kickFromAWhop(input: $input) }`

// GetUser возвращает публичный профиль пользователя.
func (c *Client) GetUser(ctx context.Context, userID string) (domain.UserInfo, error) {
	var out struct {
		PublicUser *struct {
			ID         string `json:"id"`
			Username   string `json:"username"`
			Name       string `json:"name"`
			ProfilePic string `json:"profilePic"`
			CreatedAt  stamp  `json:"createdAt"`
		} `json:"publicUser"`
	}
	if err := c.call(ctx, "GetUser", getUserQuery, map[string]any{"id": userID}, &out); err != nil {
		return domain.UserInfo{}, err
	}
	if out.PublicUser == nil {
		return domain.UserInfo{}, fmt.Errorf("platform GetUser: user %s not found", userID)
	}
	u := out.PublicUser
	return domain.UserInfo{
		ID:         u.ID,
		Username:   u.Username,
		Name:       u.Name,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt.Time(),
	}, nil
}

// GetEarnings возвращает отчёты о заработке; пустой срез означает скрытые данные.
func (c *Client) GetEarnings(ctx context.Context, userID string) ([]domain.EarningsReport, error) {
	var out struct {
		PublicUser *struct {
			EarningsReports *struct {
				Nodes []struct {
					Type       string  `json:"earningsType"`
					Last24h    float64 `json:"last24Hours"`
					Last7Days  float64 `json:"last7Days"`
					Last30Days float64 `json:"last30Days"`
					Lifetime   float64 `json:"lifetime"`
				} `json:"nodes"`
			} `json:"earningsReports"`
		} `json:"publicUser"`
	}
	if err := c.call(ctx, "GetUserEarnings", getUserEarningsQuery, map[string]any{"id": userID}, &out); err != nil {
		return nil, err
	}
	if out.PublicUser == nil || out.PublicUser.EarningsReports == nil {
		return nil, nil
	}
	reports := make([]domain.EarningsReport, 0, len(out.PublicUser.EarningsReports.Nodes))
	for _, n := range out.PublicUser.EarningsReports.Nodes {
		reports = append(reports, domain.EarningsReport{
			Type:       n.Type,
			Last24h:    n.Last24h,
			Last7Days:  n.Last7Days,
			Last30Days: n.Last30Days,
			Lifetime:   n.Lifetime,
		})
	}
	return reports, nil
}

// GetReferrals возвращает число рефералов за последние 24 часа.
func (c *Client) GetReferrals(ctx context.Context, userID string) (int, error) {
	var out struct {
		PublicUser *struct {
			Count int `json:"primaryUserReferralCountLast24Hours"`
		} `json:"publicUser"`
	}
	if err := c.call(ctx, "GetUserReferrals", getUserReferralsQuery, map[string]any{"publicUserId": userID}, &out); err != nil {
		return 0, err
	}
	if out.PublicUser == nil {
		return 0, nil
	}
	return out.PublicUser.Count, nil
}

func (c *Client) moderate(ctx context.Context, operation, query, field string, input map[string]any, phrases ...string) (domain.ModerationOutcome, error) {
	var out map[string]json.RawMessage
	err := c.call(ctx, operation, query, map[string]any{"input": input}, &out)
	return outcomeFor(scalar(out[field]), err, phrases...)
}

func (c *Client) Ban(ctx context.Context, userID string) (domain.ModerationOutcome, error) {
	return c.moderate(ctx, "banUser", banUserMutation, "banUser", map[string]any{"userId": userID}, "already banned")
}

func (c *Client) Unban(ctx context.Context, userID string) (domain.ModerationOutcome, error) {
	return c.moderate(ctx, "unbanUser", unbanUserMutation, "unbanUser", map[string]any{"userId": userID}, "not banned")
}

// Mute заглушает пользователя до момента until (unix-секунды в запросе).
func (c *Client) Mute(ctx context.Context, userID string, until time.Time) (domain.ModerationOutcome, error) {
	input := map[string]any{"userId": userID, "mutedUntil": until.Unix()}
	return c.moderate(ctx, "CreateCompanyMutedUser", muteUserMutation, "createCompanyMutedUser", input, "already muted")
}

func (c *Client) Unmute(ctx context.Context, userID string) (domain.ModerationOutcome, error) {
	return c.moderate(ctx, "DeleteCompanyMutedUser", unmuteUserMutation, "deleteCompanyMutedUser", map[string]any{"userId": userID}, "not muted")
}

func (c *Client) Kick(ctx context.Context, userID string) (domain.ModerationOutcome, error) {
	return c.moderate(ctx, "KickFromAWhop", kickUserMutation, "kickFromAWhop", map[string]any{"id": userID}, "already kicked")
}
