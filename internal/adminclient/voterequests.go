package adminclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sv-governance/internal/model"

	"go.uber.org/zap"
)

const voteRequestsAPI = "v0/admin/sv/voterequest"

type listVoteRequestsRequest struct {
	VoteRequestContractIDs []model.ContractID `json:"vote_request_contract_ids"`
}

type listVoteRequestsResponse struct {
	VoteRequests []model.RawContract `json:"vote_requests"`
}

// ListVoteRequestsByTrackingCid returns the vote requests for the given ids,
// matched either by their own contract id or by their tracking id.
func (c *Client) ListVoteRequestsByTrackingCid(ctx context.Context, ids []model.ContractID) ([]model.RawContract, error) {
	if ids == nil {
		ids = []model.ContractID{}
	}
	data, err := json.Marshal(listVoteRequestsRequest{VoteRequestContractIDs: ids})
	if err != nil {
		return nil, &FetchError{Endpoint: voteRequestsAPI, Err: err}
	}

	response, err := c.sendRequest(ctx, http.MethodPost, voteRequestsAPI, data)
	if err != nil {
		return nil, err
	}

	var unmarshalled listVoteRequestsResponse
	if err := json.Unmarshal(response, &unmarshalled); err != nil {
		return nil, &FetchError{Endpoint: voteRequestsAPI, StatusCode: http.StatusOK, Err: errors.New("failed to unmarshal the response: " + err.Error())}
	}
	if unmarshalled.VoteRequests == nil {
		return nil, &FetchError{Endpoint: voteRequestsAPI, StatusCode: http.StatusOK, Err: errors.New("response without vote_requests")}
	}

	c.logger.Debug("listed vote requests", zap.Int("requested", len(ids)), zap.Int("returned", len(unmarshalled.VoteRequests)))

	return unmarshalled.VoteRequests, nil
}
