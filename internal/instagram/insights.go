package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"instagram-automation/models"
)

var (
	feedMetrics  = []string{"impressions", "reach", "engagement", "saved"}
	storyMetrics = []string{"impressions", "reach", "replies"}
)

// simulated values are drawn from these ranges
var simulatedMetricRanges = map[string][2]int64{
	"impressions": {100, 5000},
	"reach":       {80, 4000},
	"engagement":  {5, 500},
	"saved":       {0, 100},
	"replies":     {0, 50},
}

func metricsFor(kind models.PostKind) []string {
	if kind == models.PostKindStory {
		return storyMetrics
	}
	return feedMetrics
}

// FetchMetrics is best effort: any failure yields an empty map.
func (c *Client) FetchMetrics(ctx context.Context, postID string, kind models.PostKind, token string) map[string]int64 {
	names := metricsFor(kind)
	out := make(map[string]int64, len(names))

	if IsSimulationToken(token) {
		for _, name := range names {
			r := simulatedMetricRanges[name]
			out[name] = c.randomBetween(r[0], r[1])
		}
		return out
	}

	data, err := c.call(ctx, "fetch insights", http.MethodGet, "/"+url.PathEscape(postID)+"/insights", url.Values{
		"metric":       {strings.Join(names, ",")},
		"access_token": {token},
	})
	if err != nil {
		c.log.Debug("Insights unavailable", "post_id", postID, "error", err)
		return out
	}

	var resp struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value json.Number `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		c.log.Debug("Insights response not understood", "post_id", postID, "error", err)
		return out
	}

	for _, m := range resp.Data {
		if len(m.Values) == 0 {
			continue
		}
		if v, err := m.Values[0].Value.Int64(); err == nil {
			out[m.Name] = v
		}
	}
	return out
}
