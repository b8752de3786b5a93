package platform

import (
	"context"
	"fmt"

	"whop-chat-bot/internal/domain"
)

const chatFeedExperienceQuery = `query GetChatFeedExperienceId($feedId: ID!) {
  chatFeed(feedId: $feedId) { experienceId }
}`

const experienceQuery = `query GetExperience($experienceId: ID!) {
  publicExperience(id: $experienceId) { id name company { id } }
}`

const experienceDetailsQuery = `query GetExperienceDetails($experienceId: ID!) {
  publicExperience(id: $experienceId) { id name accessPasses { id title route } }
}`

const userAndMembershipsQuery = `query GetUserAndMemberships($userId: ID!, $companyId: ID!) {
  publicUser(id: $userId) { id username name profilePic }
  company(id: $companyId) {
    companyMember(id: $userId) {
      id
      memberships { nodes { id status expiresAt accessPass { id name experiences { id name } } } }
    }
  }
}`

const updateMembershipMutation = `mutation UpdateMembership($input: UpdateMembershipInput!) {
  updateMembership(input: $input) { member { id expiresAt } }
}`

type membershipNode struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ExpiresAt  stamp  `json:"expiresAt"`
	AccessPass *struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Experiences []struct {
			ID string `json:"id"`
		} `json:"experiences"`
	} `json:"accessPass"`
}

func (m membershipNode) grants(experienceID string) bool {
	if m.AccessPass == nil {
		return false
	}
	for _, e := range m.AccessPass.Experiences {
		if e.ID == experienceID {
			return true
		}
	}
	return false
}

// AddFreeDays находит подписку пользователя на продукт ленты и продлевает её.
func (c *Client) AddFreeDays(ctx context.Context, feedID, userID string, days int) (domain.FreeDaysResult, error) {
	experienceID, experienceName, companyID, err := c.feedExperience(ctx, feedID)
	if err != nil {
		return domain.FreeDaysResult{}, err
	}

	var data struct {
		PublicUser *struct {
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"publicUser"`
		Company *struct {
			CompanyMember *struct {
				Memberships struct {
					Nodes []membershipNode `json:"nodes"`
				} `json:"memberships"`
			} `json:"companyMember"`
		} `json:"company"`
	}
	vars := map[string]any{"userId": userID, "companyId": companyID}
	if err := c.call(ctx, "GetUserAndMemberships", userAndMembershipsQuery, vars, &data); err != nil {
		return domain.FreeDaysResult{}, err
	}
	result := domain.FreeDaysResult{ExperienceName: experienceName}
	if data.PublicUser != nil {
		result.Username = domain.UserInfo{ID: userID, Username: data.PublicUser.Username, Name: data.PublicUser.Name}.DisplayName()
	}
	if data.Company == nil || data.Company.CompanyMember == nil {
		return result, domain.ErrNoMembership
	}
	var target *membershipNode
	for i, m := range data.Company.CompanyMember.Memberships.Nodes {
		if m.grants(experienceID) {
			target = &data.Company.CompanyMember.Memberships.Nodes[i]
			break
		}
	}
	if target == nil {
		return result, domain.ErrNoMembership
	}
	result.MembershipID = target.ID

	var updated struct {
		UpdateMembership struct {
			Member struct {
				ExpiresAt stamp `json:"expiresAt"`
			} `json:"member"`
		} `json:"updateMembership"`
	}
	input := map[string]any{"id": target.ID, "membershipAction": "add_free_days", "freeDays": days}
	if err := c.call(ctx, "UpdateMembership", updateMembershipMutation, map[string]any{"input": input}, &updated); err != nil {
		return result, fmt.Errorf("update membership %s: %w", target.ID, err)
	}
	result.ExpiresAt = updated.UpdateMembership.Member.ExpiresAt.Time()
	return result, nil
}

// FeedAccessPasses возвращает продукты experience, к которому привязана лента.
func (c *Client) FeedAccessPasses(ctx context.Context, feedID string) ([]domain.AccessPass, error) {
	experienceID, err := c.feedExperienceID(ctx, feedID)
	if err != nil {
		return nil, err
	}
	var data struct {
		PublicExperience *struct {
			AccessPasses []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
				Route string `json:"route"`
			} `json:"accessPasses"`
		} `json:"publicExperience"`
	}
	if err := c.call(ctx, "GetExperienceDetails", experienceDetailsQuery, map[string]any{"experienceId": experienceID}, &data); err != nil {
		return nil, err
	}
	if data.PublicExperience == nil {
		return nil, fmt.Errorf("experience %s: %w", experienceID, domain.ErrNoExperience)
	}
	passes := make([]domain.AccessPass, 0, len(data.PublicExperience.AccessPasses))
	for _, p := range data.PublicExperience.AccessPasses {
		passes = append(passes, domain.AccessPass{ID: p.ID, Title: p.Title, Route: p.Route})
	}
	return passes, nil
}

func (c *Client) feedExperienceID(ctx context.Context, feedID string) (string, error) {
	var feed struct {
		ChatFeed *struct {
			ExperienceID string `json:"experienceId"`
		} `json:"chatFeed"`
	}
	if err := c.call(ctx, "GetChatFeedExperienceId", chatFeedExperienceQuery, map[string]any{"feedId": feedID}, &feed); err != nil {
		return "", err
	}
	if feed.ChatFeed == nil || feed.ChatFeed.ExperienceID == "" {
		return "", fmt.Errorf("feed %s: %w", feedID, domain.ErrNoExperience)
	}
	return feed.ChatFeed.ExperienceID, nil
}

func (c *Client) feedExperience(ctx context.Context, feedID string) (experienceID, name, companyID string, err error) {
	experienceID, err = c.feedExperienceID(ctx, feedID)
	if err != nil {
		return "", "", "", err
	}

	var exp struct {
		PublicExperience *struct {
			Name    string `json:"name"`
			Company struct {
				ID string `json:"id"`
			} `json:"company"`
		} `json:"publicExperience"`
	}
	if err := c.call(ctx, "GetExperience", experienceQuery, map[string]any{"experienceId": experienceID}, &exp); err != nil {
		return "", "", "", err
	}
	if exp.PublicExperience == nil || exp.PublicExperience.Company.ID == "" {
		return "", "", "", fmt.Errorf("experience %s has no company", experienceID)
	}
	return experienceID, exp.PublicExperience.Name, exp.PublicExperience.Company.ID, nil
}
