package votes

import (
	"context"
	"sv-governance/internal/contract"
	"sv-governance/internal/model"

	"go.uber.org/zap"
)

// Fetcher lists the raw vote request contracts for the given ids.
type Fetcher interface {
	ListVoteRequestsByTrackingCid(ctx context.Context, ids []model.ContractID) ([]model.RawContract, error)
}

// Decoder turns raw contracts into typed vote requests, all or nothing.
type Decoder func(raws []model.RawContract) ([]model.VoteRequest, error)

type Query struct {
	logger  *zap.Logger
	fetcher Fetcher
	decode  Decoder
}

func NewQuery(logger *zap.Logger, fetcher Fetcher) Query {
	return Query{
		logger:  logger,
		fetcher: fetcher,
		decode:  contract.DecodeVoteRequests,
	}
}

// WithDecoder replaces the contract decoder.
func (q Query) WithDecoder(decode Decoder) Query {
	q.decode = decode
	return q
}

// ListVotes returns one SvVote per vote cast on the requests tracked by ids.
// Fetch and decode errors are returned unchanged, no partial results.
func (q Query) ListVotes(ctx context.Context, ids []model.ContractID) ([]model.SvVote, error) {
	if len(ids) == 0 {
		return []model.SvVote{}, nil
	}

	raws, err := q.fetcher.ListVoteRequestsByTrackingCid(ctx, ids)
	if err != nil {
		q.logger.Warn("listing vote requests failed: "+err.Error(), zap.Int("ids", len(ids)))
		return nil, err
	}

	requests, err := q.decode(raws)
	if err != nil {
		q.logger.Warn("decoding vote requests failed: "+err.Error(), zap.Int("contracts", len(raws)))
		return nil, err
	}

	return Flatten(requests), nil
}

// Flatten emits the votes of every request in request order, then vote mapping order.
func Flatten(requests []model.VoteRequest) []model.SvVote {
	total := 0
	for _, request := range requests {
		total += len(request.Votes)
	}

	svVotes := make([]model.SvVote, 0, total)
	for _, request := range requests {
		requestCID := request.EffectiveRequestCID()
		for _, entry := range request.Votes {
			svVotes = append(svVotes, model.SvVote{
				RequestCID: requestCID,
				Voter:      entry.Vote.Voter,
				Accept:     entry.Vote.Accept,
				Reason:     entry.Vote.Reason,
				ExpiresAt:  request.VoteBefore,
			})
		}
	}

	return svVotes
}
