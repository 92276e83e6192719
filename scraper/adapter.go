package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"job_scrooper/config"
	"job_scrooper/models"
)

var ErrUnknownSource = errors.New("unknown source")

// ActorRunner starts an actor, waits for it and returns its dataset items.
// *apify.Client satisfies it.
type ActorRunner interface {
	Call(ctx context.Context, actorID string, input any) ([]json.RawMessage, error)
}

// Query is one search an adapter runs against its source.
type Query struct {
	Text       string
	Location   string
	MaxResults int
}

// Adapter turns a query into raw items for one job board.
type Adapter interface {
	Source() string
	Fetch(ctx context.Context, q Query) ([]models.RawItem, error)
}

// NewAdapter builds the adapter a source config asks for.
func NewAdapter(src *config.SourceConfig, runner ActorRunner) (Adapter, error) {
	switch src.Adapter {
	case "indeed":
		return NewIndeedAdapter(src, runner), nil
	case "linkedin":
		return NewLinkedInAdapter(src, runner), nil
	default:
		return nil, fmt.Errorf("%w: adapter %q for source %q", ErrUnknownSource, src.Adapter, src.ID)
	}
}

// proxyInput renders source proxy settings as actor input.
func proxyInput(p config.ProxySettings) map[string]any {
	proxy := map[string]any{"useApifyProxy": p.UseApifyProxy}
	if len(p.Groups) > 0 {
		proxy["apifyProxyGroups"] = p.Groups
	}
	return proxy
}

func tagItems(source string, items []json.RawMessage) []models.RawItem {
	out := make([]models.RawItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.RawItem{Source: source, Data: item})
	}
	return out
}
