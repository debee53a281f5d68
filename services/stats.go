package services

import (
	"context"
	"time"

	"github.com/guseggert/k4/rpc"
)

type Stats struct {
	stub rpc.Stub
}

func NewStats(s *rpc.Session) *Stats {
	return &Stats{stub: s.Namespace("Stats")}
}

type UserChannelStats struct {
	NumCharactersSent int64 `json:"numCharactersSent"`
	NumMessagesSent   int64 `json:"numMessagesSent"`
	LastResetTimeUnix int64 `json:"lastResetTimeUnix"`
}

func (u *UserChannelStats) LastReset() time.Time {
	return time.Unix(u.LastResetTimeUnix, 0)
}

func (s *Stats) GetUserChannelStats(ctx context.Context, userID, channelID string) (*UserChannelStats, error) {
	var stats UserChannelStats
	if err := s.stub.CallInto(ctx, "GetUserChannelStats", rpc.Args{"userID": userID, "channelID": channelID}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
