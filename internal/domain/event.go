package domain

const (
	EventNameStatsUpdated       = "stats.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventStatsUpdated struct {
	Score UserScore
	Stats UserStats
}

func (EventStatsUpdated) Name() string { return EventNameStatsUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
