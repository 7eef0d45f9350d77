package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/adaptivequiz/internal/domain"
)

const maxConcurrent = 100

// Notification is the envelope of every message pushed to clients, over Redis pubsub or websocket.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated pushes the new leaderboard to websocket clients and to the channel of every user on it.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(&e.Leaderboard)

	b, err := json.Marshal(Notification{Event: e.Name(), Data: data})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", e.Name(), err)
	}

	a.hub.broadcast(b)

	if a.redis == nil {
		return nil
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.redis.Publish(ctx, a.userChannel(entry.UserID), b).Err()
		})
	}

	return eg.Wait()
}

func (a *API) userChannel(userID string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, userID)
}
