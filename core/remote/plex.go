package remote

import (
	"context"

	"go.uber.org/zap"
)

// PlexClient talks to a Plex media server. The janitor only ever asks Plex to
// rescan a library section after files were removed.
type PlexClient struct {
	c *Client
}

// NewPlex creates a Plex client, or nil when unconfigured.
func NewPlex(cfg ServiceConfig, logger *zap.Logger) *PlexClient {
	client := NewClient(cfg, logger, WithAuthQuery("X-Plex-Token"))
	if client == nil {
		return nil
	}
	return &PlexClient{c: client}
}

// RefreshSection asks Plex to rescan the given library section.
func (p *PlexClient) RefreshSection(ctx context.Context, sectionKey string) error {
	return p.c.Do(ctx, "GET", "/library/sections/"+sectionKey+"/refresh", nil, nil)
}
