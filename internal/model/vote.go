package model

import "time"

// ContractID references a single ledger contract instance.
type ContractID string

type Reason struct {
	URL  string `json:"url"`
	Body string `json:"body"`
}

// Vote is a single voter's decision on a vote request.
type Vote struct {
	Voter  string
	Accept bool
	Reason Reason
}

// VoteEntry is one key/value pair of the vote mapping of a request.
type VoteEntry struct {
	Key  string
	Vote Vote
}

// VoteRequest is the decoded payload of a pending governance proposal.
type VoteRequest struct {
	ContractID ContractID
	// TrackingCID points to the original request when this one renews it.
	TrackingCID *ContractID
	Requester   string
	Reason      Reason
	// Votes keep the order they had on the wire, keys are unique.
	Votes      []VoteEntry
	VoteBefore time.Time
}

// EffectiveRequestCID returns the tracking id when it is set and not empty,
// otherwise the contract id of the request itself.
func (r VoteRequest) EffectiveRequestCID() ContractID {
	if r.TrackingCID != nil && *r.TrackingCID != "" {
		return *r.TrackingCID
	}
	return r.ContractID
}

// SvVote is the display projection of one voter's decision on one request.
type SvVote struct {
	RequestCID ContractID `json:"requestCid"`
	Voter      string     `json:"voter"`
	Accept     bool       `json:"accept"`
	Reason     Reason     `json:"reason"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}
