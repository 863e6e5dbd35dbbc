package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sv-governance/internal/model"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	requestCidParam = "requestCid"

	maxBodySize = 1 << 20
)

type listVotesRequest struct {
	RequestCids []string `json:"request_cids"`
}

func (ser *server) getVotes(w http.ResponseWriter, r *http.Request) {
	ids, err := readRequestCids(r.URL.Query()[requestCidParam])
	if err != nil {
		ser.badRequest(w, err.Error())
		return
	}

	ser.listVotes(w, r, ids)
}

func (ser *server) postVotes(w http.ResponseWriter, r *http.Request) {
	var body listVotesRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		ser.badRequest(w, "failed to parse the request body: "+err.Error())
		return
	}

	ids, err := readRequestCids(body.RequestCids)
	if err != nil {
		ser.badRequest(w, err.Error())
		return
	}

	ser.listVotes(w, r, ids)
}

func (ser *server) listVotes(w http.ResponseWriter, r *http.Request, ids []model.ContractID) {
	ctx, cancel := context.WithTimeout(r.Context(), ser.options.RequestTimeout)
	defer cancel()

	svVotes, err := ser.app.ListVotes(ctx, ids)
	if err != nil {
		ser.queryError(w, err)
		return
	}

	ser.respondJSON(w, svVotes)
}

func (ser *server) deleteVoteCache(w http.ResponseWriter, r *http.Request) {
	user := userOf(r)
	ser.logger.Info("invalidating the vote cache", zap.String("user", user))

	ser.app.InvalidateVotes()
	w.WriteHeader(http.StatusNoContent)
}

func (ser *server) getConfig(w http.ResponseWriter, r *http.Request) {
	ser.respondJSON(w, ser.app.InstanceNames())
}

func (ser *server) respondJSON(w http.ResponseWriter, data interface{}) {
	response, err := json.Marshal(data)
	if err != nil {
		ser.serverError(w, "marshalling the response failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(response); err != nil {
		ser.logger.Error("failed to write the response: " + err.Error())
	}
}

// readRequestCids keeps order and duplicates. Ids are passed on verbatim,
// so empty ones and ones with surrounding whitespace are rejected.
func readRequestCids(values []string) ([]model.ContractID, error) {
	var err error
	for i, value := range values {
		switch {
		case value == "":
			err = multierr.Append(err, fmt.Errorf("%s #%d is empty", requestCidParam, i))
		case strings.TrimSpace(value) != value:
			err = multierr.Append(err, fmt.Errorf("%s #%d has surrounding whitespace", requestCidParam, i))
		}
	}
	if err != nil {
		return nil, errors.New("invalid request ids: " + err.Error())
	}
	return model.ContractIDsFromStrings(values), nil
}
