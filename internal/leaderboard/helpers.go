package leaderboard

import "strconv"

const (
	defaultLimit = 10
	maxLimit     = 100
)

func parseLimit(raw string) int {
	if raw == "" {
		return defaultLimit
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 || parsed > maxLimit {
		return defaultLimit
	}
	return parsed
}
