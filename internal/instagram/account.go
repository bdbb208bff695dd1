package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"instagram-automation/internal/apperr"
)

// AccountInfo is the profile returned by the account lookup
type AccountInfo struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	AccountType    string `json:"account_type"`
	FollowersCount int64  `json:"followers_count"`
	MediaCount     int64  `json:"media_count"`
}

// GetAccountInfo verifies credentials against the platform. Simulation
// tokens get a synthetic profile.
func (c *Client) GetAccountInfo(ctx context.Context, accountID, token string) (*AccountInfo, error) {
	if IsSimulationToken(token) {
		return &AccountInfo{ID: accountID, AccountType: "business"}, nil
	}
	if err := ValidateCredentials(accountID, token); err != nil {
		return nil, err
	}

	data, err := c.call(ctx, "get account info", http.MethodGet, "/"+url.PathEscape(accountID), url.Values{
		"fields":       {"id,username,followers_count,media_count"},
		"access_token": {token},
	})
	if err != nil {
		return nil, err
	}

	var info AccountInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, apperr.Newf(apperr.KindPlatform, "get account info", "unexpected response from Graph API: %v", err)
	}
	if info.ID == "" {
		return nil, apperr.New(apperr.KindPlatform, "get account info", "Graph API returned no account id")
	}
	if info.AccountType == "" {
		info.AccountType = "business"
	}
	return &info, nil
}
