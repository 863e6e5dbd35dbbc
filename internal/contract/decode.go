package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sv-governance/internal/model"
	"strings"
	"time"
)

// VoteRequestTemplate is the qualified name of the vote request template,
// template ids come as `<package-id>:Splice.DsoRules:VoteRequest`.
const VoteRequestTemplate = "Splice.DsoRules:VoteRequest"

var (
	ErrMissingField = errors.New("missing field")
	ErrTemplate     = errors.New("unexpected template")
	ErrDuplicateKey = errors.New("duplicate map key")
)

// DecodeError is returned when a contract payload doesn't match the expected schema.
type DecodeError struct {
	ContractID model.ContractID
	Field      string
	Err        error
}

func (e *DecodeError) Error() string {
	msg := "decode contract " + string(e.ContractID)
	if e.Field != "" {
		msg += ", field " + e.Field
	}
	return msg + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type reasonData struct {
	URL  *string `json:"url"`
	Body *string `json:"body"`
}

type voteData struct {
	Sv     *string     `json:"sv"`
	Accept *bool       `json:"accept"`
	Reason *reasonData `json:"reason"`
}

type voteRequestData struct {
	Requester   string            `json:"requester"`
	Reason      *reasonData       `json:"reason"`
	VoteBefore  *string           `json:"voteBefore"`
	Votes       []json.RawMessage `json:"votes"`
	TrackingCid *string           `json:"trackingCid"`
}

// DecodeVoteRequests decodes all the contracts or fails on the first invalid one.
func DecodeVoteRequests(raws []model.RawContract) ([]model.VoteRequest, error) {
	requests := make([]model.VoteRequest, len(raws))
	for i, raw := range raws {
		request, err := DecodeVoteRequest(raw)
		if err != nil {
			return nil, err
		}
		requests[i] = request
	}
	return requests, nil
}

func DecodeVoteRequest(raw model.RawContract) (model.VoteRequest, error) {
	fail := func(field string, err error) (model.VoteRequest, error) {
		return model.VoteRequest{}, &DecodeError{ContractID: raw.ContractID, Field: field, Err: err}
	}

	if raw.ContractID == "" {
		return fail("contract_id", ErrMissingField)
	}
	if raw.TemplateID != "" && !strings.HasSuffix(raw.TemplateID, ":"+VoteRequestTemplate) && raw.TemplateID != VoteRequestTemplate {
		return fail("template_id", fmt.Errorf("%w: %s", ErrTemplate, raw.TemplateID))
	}

	payload := bytes.TrimSpace(raw.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return fail("payload", errors.New("payload is not an object"))
	}

	var data voteRequestData
	if err := json.Unmarshal(payload, &data); err != nil {
		return fail("payload", err)
	}

	if data.VoteBefore == nil {
		return fail("voteBefore", ErrMissingField)
	}
	voteBefore, err := time.Parse(time.RFC3339Nano, *data.VoteBefore)
	if err != nil {
		return fail("voteBefore", err)
	}

	if data.Votes == nil {
		return fail("votes", ErrMissingField)
	}
	votes, field, err := decodeVotes(data.Votes)
	if err != nil {
		return fail(field, err)
	}

	request := model.VoteRequest{
		ContractID: raw.ContractID,
		Requester:  data.Requester,
		Votes:      votes,
		VoteBefore: voteBefore,
	}
	if data.Reason != nil {
		request.Reason, _ = data.Reason.toModel()
	}
	if data.TrackingCid != nil {
		tracking := model.ContractID(*data.TrackingCid)
		request.TrackingCID = &tracking
	}

	return request, nil
}

// decodeVotes reads a ledger map encoded as a list of [key, value] pairs.
func decodeVotes(pairs []json.RawMessage) ([]model.VoteEntry, string, error) {
	entries := make([]model.VoteEntry, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))

	for i, rawPair := range pairs {
		field := fmt.Sprintf("votes[%d]", i)

		var pair []json.RawMessage
		if err := json.Unmarshal(rawPair, &pair); err != nil {
			return nil, field, err
		}
		if len(pair) != 2 {
			return nil, field, fmt.Errorf("expected a [key, value] pair, got %d elements", len(pair))
		}

		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return nil, field + ".key", err
		}
		if _, ok := seen[key]; ok {
			return nil, field + ".key", fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}

		vote, voteField, err := decodeVote(pair[1])
		if err != nil {
			return nil, field + "." + voteField, err
		}

		entries = append(entries, model.VoteEntry{Key: key, Vote: vote})
	}

	return entries, "", nil
}

func decodeVote(raw json.RawMessage) (model.Vote, string, error) {
	var data voteData
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.Vote{}, "value", err
	}
	if data.Sv == nil {
		return model.Vote{}, "sv", ErrMissingField
	}
	if data.Accept == nil {
		return model.Vote{}, "accept", ErrMissingField
	}
	if data.Reason == nil {
		return model.Vote{}, "reason", ErrMissingField
	}
	reason, field := data.Reason.toModel()
	if field != "" {
		return model.Vote{}, "reason." + field, ErrMissingField
	}

	return model.Vote{
		Voter:  *data.Sv,
		Accept: *data.Accept,
		Reason: reason,
	}, "", nil
}

// toModel returns the name of the first missing field, if any.
func (r reasonData) toModel() (model.Reason, string) {
	if r.URL == nil {
		return model.Reason{}, "url"
	}
	if r.Body == nil {
		return model.Reason{}, "body"
	}
	return model.Reason{URL: *r.URL, Body: *r.Body}, ""
}
