package remote

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// HistoryItem is one playback record from the Tautulli history feed.
type HistoryItem struct {
	FullTitle       string  `json:"full_title"`
	File            string  `json:"file"`
	User            string  `json:"user"`
	Date            int64   `json:"date"`
	PlayDuration    int64   `json:"play_duration"`
	Duration        int64   `json:"duration"`
	PercentComplete int     `json:"percent_complete"`
	WatchedStatus   float64 `json:"watched_status"`
}

// historyEnvelope is the Tautulli API v2 response wrapper.
type historyEnvelope struct {
	Response struct {
		Result string `json:"result"`
		Data   struct {
			RecordsFiltered int           `json:"recordsFiltered"`
			Data            []HistoryItem `json:"data"`
		} `json:"data"`
	} `json:"response"`
}

// TautulliClient talks to a Tautulli instance. It is a read-only source.
type TautulliClient struct {
	c *Client
}

// NewTautulli creates a Tautulli client, or nil when unconfigured.
func NewTautulli(cfg ServiceConfig, logger *zap.Logger) *TautulliClient {
	client := NewClient(cfg, logger, WithAuthQuery("apikey"))
	if client == nil {
		return nil
	}
	return &TautulliClient{c: client}
}

// History returns one page of the playback history feed and the total number
// of filtered records, so callers can paginate.
func (t *TautulliClient) History(ctx context.Context, start, length int) ([]HistoryItem, int, error) {
	query := url.Values{}
	query.Set("cmd", "get_history")
	query.Set("start", strconv.Itoa(start))
	query.Set("length", strconv.Itoa(length))

	var envelope historyEnvelope
	if err := t.c.GetJSON(ctx, "/api/v2", query, &envelope); err != nil {
		return nil, 0, err
	}
	return envelope.Response.Data.Data, envelope.Response.Data.RecordsFiltered, nil
}

// ClearCache drops cached Tautulli responses.
func (t *TautulliClient) ClearCache() {
	t.c.ClearCache()
}
