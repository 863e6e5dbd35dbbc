package votes_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sv-governance/internal/adminclient"
	"sv-governance/internal/contract"
	"sv-governance/internal/model"
	"sv-governance/internal/votes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fetcherMock struct {
	mock.Mock
}

func (m *fetcherMock) ListVoteRequestsByTrackingCid(ctx context.Context, ids []model.ContractID) ([]model.RawContract, error) {
	args := m.Called(ctx, ids)
	raws, _ := args.Get(0).([]model.RawContract)
	return raws, args.Error(1)
}

const voteBefore = "2024-09-20T10:15:30Z"

func expiresAt(t *testing.T) time.Time {
	parsed, err := time.Parse(time.RFC3339, voteBefore)
	require.NoError(t, err)
	return parsed
}

func voteRequestContract(cid string, trackingCid *string, voters ...string) model.RawContract {
	votes := make([]interface{}, len(voters))
	for i, voter := range voters {
		votes[i] = []interface{}{voter, map[string]interface{}{
			"sv":     voter,
			"accept": i%2 == 0,
			"reason": map[string]string{"url": "https://forum/" + voter, "body": "reason of " + voter},
		}}
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"voteBefore":  voteBefore,
		"votes":       votes,
		"trackingCid": trackingCid,
	})

	return model.RawContract{
		TemplateID: "pkg:Splice.DsoRules:VoteRequest",
		ContractID: model.ContractID(cid),
		Payload:    payload,
	}
}

func TestListVotesEmptyInput(t *testing.T) {
	fetcher := &fetcherMock{}
	query := votes.NewQuery(zap.NewNop(), fetcher)

	for _, ids := range [][]model.ContractID{nil, {}} {
		result, err := query.ListVotes(context.Background(), ids)
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Empty(t, result)
	}

	fetcher.AssertNotCalled(t, "ListVoteRequestsByTrackingCid", mock.Anything, mock.Anything)
}

func TestListVotesSingleRequest(t *testing.T) {
	ids := []model.ContractID{"req-1"}
	raw := model.RawContract{
		ContractID: "req-1",
		Payload: json.RawMessage(`{"voteBefore": "` + voteBefore + `", "trackingCid": null,
			"votes": [["sv-A", {"sv": "sv-A", "accept": true, "reason": {"url": "", "body": "ok"}}]]}`),
	}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).Return([]model.RawContract{raw}, nil).Once()

	result, err := votes.NewQuery(zap.NewNop(), fetcher).ListVotes(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, []model.SvVote{{
		RequestCID: "req-1",
		Voter:      "sv-A",
		Accept:     true,
		Reason:     model.Reason{URL: "", Body: "ok"},
		ExpiresAt:  expiresAt(t),
	}}, result)
	fetcher.AssertExpectations(t)
}

func TestListVotesUsesTrackingCid(t *testing.T) {
	tracking := "orig-1"
	ids := []model.ContractID{"orig-1"}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).
		Return([]model.RawContract{voteRequestContract("req-2", &tracking, "sv-A", "sv-B")}, nil).Once()

	result, err := votes.NewQuery(zap.NewNop(), fetcher).ListVotes(context.Background(), ids)
	require.NoError(t, err)

	require.Len(t, result, 2)
	for _, vote := range result {
		assert.Equal(t, model.ContractID("orig-1"), vote.RequestCID)
	}
	assert.Equal(t, "sv-A", result[0].Voter)
	assert.Equal(t, "sv-B", result[1].Voter)
	fetcher.AssertExpectations(t)
}

func TestListVotesEmptyTrackingCidFallsBack(t *testing.T) {
	empty := ""
	ids := []model.ContractID{"req-3"}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).
		Return([]model.RawContract{voteRequestContract("req-3", &empty, "sv-A")}, nil)

	result, err := votes.NewQuery(zap.NewNop(), fetcher).ListVotes(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, model.ContractID("req-3"), result[0].RequestCID)
}

func TestListVotesCountAndOrder(t *testing.T) {
	ids := []model.ContractID{"req-1", "req-2", "req-3", "req-1"}
	raws := []model.RawContract{
		voteRequestContract("req-1", nil, "sv-A", "sv-B", "sv-C"),
		voteRequestContract("req-2", nil),
		voteRequestContract("req-3", nil, "sv-D", "sv-E"),
	}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).Return(raws, nil).Once()

	result, err := votes.NewQuery(zap.NewNop(), fetcher).ListVotes(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, result, 5)

	var order []string
	for _, vote := range result {
		order = append(order, fmt.Sprintf("%s/%s", vote.RequestCID, vote.Voter))
		assert.Equal(t, "reason of "+vote.Voter, vote.Reason.Body)
		assert.Equal(t, "https://forum/"+vote.Voter, vote.Reason.URL)
		assert.True(t, vote.ExpiresAt.Equal(expiresAt(t)))
	}
	assert.Equal(t, []string{"req-1/sv-A", "req-1/sv-B", "req-1/sv-C", "req-3/sv-D", "req-3/sv-E"}, order)
	fetcher.AssertNumberOfCalls(t, "ListVoteRequestsByTrackingCid", 1)
}

func TestListVotesDecodeError(t *testing.T) {
	ids := []model.ContractID{"req-1", "req-2"}
	raws := []model.RawContract{
		voteRequestContract("req-1", nil, "sv-A"),
		{ContractID: "req-2", Payload: json.RawMessage(`{"votes": []}`)},
	}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).Return(raws, nil)

	result, err := votes.NewQuery(zap.NewNop(), fetcher).ListVotes(context.Background(), ids)
	assert.Nil(t, result)

	var decodeErr *contract.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, model.ContractID("req-2"), decodeErr.ContractID)
}

func TestListVotesCustomDecoderError(t *testing.T) {
	ids := []model.ContractID{"req-1"}
	decodeErr := &contract.DecodeError{ContractID: "req-1", Err: errors.New("schema mismatch")}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).Return([]model.RawContract{{ContractID: "req-1"}}, nil)

	query := votes.NewQuery(zap.NewNop(), fetcher).WithDecoder(func([]model.RawContract) ([]model.VoteRequest, error) {
		return nil, decodeErr
	})

	_, err := query.ListVotes(context.Background(), ids)
	assert.Same(t, decodeErr, err)
}

func TestListVotesFetchError(t *testing.T) {
	ids := []model.ContractID{"req-1"}
	fetchErr := &adminclient.FetchError{Endpoint: "v0/admin/sv/voterequest", Err: errors.New("connection refused")}

	fetcher := &fetcherMock{}
	fetcher.On("ListVoteRequestsByTrackingCid", mock.Anything, ids).Return(nil, fetchErr).Once()

	result, err := votes.NewQuery(zap.NewNop(), fetcher).ListVotes(context.Background(), ids)
	assert.Nil(t, result)

	var asFetchErr *adminclient.FetchError
	require.True(t, errors.As(err, &asFetchErr))
	assert.Same(t, fetchErr, asFetchErr)
	fetcher.AssertExpectations(t)
}

func TestFlatten(t *testing.T) {
	tracking := model.ContractID("orig")
	before := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	requests := []model.VoteRequest{
		{
			ContractID:  "c1",
			TrackingCID: &tracking,
			VoteBefore:  before,
			Votes: []model.VoteEntry{
				{Key: "sv-1", Vote: model.Vote{Voter: "sv-1", Accept: false, Reason: model.Reason{URL: "u", Body: "b"}}},
			},
		},
		{ContractID: "c2", VoteBefore: before},
	}

	assert.Equal(t, []model.SvVote{{
		RequestCID: "orig",
		Voter:      "sv-1",
		Accept:     false,
		Reason:     model.Reason{URL: "u", Body: "b"},
		ExpiresAt:  before,
	}}, votes.Flatten(requests))
	assert.Empty(t, votes.Flatten(nil))
}
