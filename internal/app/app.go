package app

import (
	"context"
	"sv-governance/internal/config"
	"sv-governance/internal/model"
	"sv-governance/internal/querycache"

	"go.uber.org/zap"
)

const listVotesQuery = "listVoteRequestsByTrackingCid"

// VoteLister is the uncached vote query.
type VoteLister interface {
	ListVotes(ctx context.Context, ids []model.ContractID) ([]model.SvVote, error)
}

type App struct {
	logger        *zap.Logger
	votes         VoteLister
	voteCache     *querycache.Cache[[]model.SvVote]
	instanceNames config.InstanceNames
}

func NewApp(logger *zap.Logger, votes VoteLister, voteCache *querycache.Cache[[]model.SvVote], instanceNames config.InstanceNames) *App {
	return &App{
		logger:        logger,
		votes:         votes,
		voteCache:     voteCache,
		instanceNames: instanceNames,
	}
}

// ListVotes returns the votes on the requests tracked by ids, through the vote cache.
func (a *App) ListVotes(ctx context.Context, ids []model.ContractID) ([]model.SvVote, error) {
	if len(ids) == 0 {
		return []model.SvVote{}, nil
	}

	// callers must not share the ids slice with the loader running in the background
	requested := append([]model.ContractID(nil), ids...)
	key := querycache.Key(listVotesQuery, requested)

	svVotes, err := a.voteCache.Get(ctx, key, func(ctx context.Context) ([]model.SvVote, error) {
		return a.votes.ListVotes(ctx, requested)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("listed votes", zap.Int("requests", len(ids)), zap.Int("votes", len(svVotes)))
	return svVotes, nil
}

// InvalidateVotes drops every cached vote list.
func (a *App) InvalidateVotes() {
	a.voteCache.InvalidateAll()
	a.logger.Info("vote cache invalidated")
}

func (a *App) InstanceNames() config.InstanceNames {
	return a.instanceNames
}
