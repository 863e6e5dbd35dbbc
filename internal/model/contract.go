package model

import "encoding/json"

// RawContract is a contract as returned by the admin API, payload still encoded.
type RawContract struct {
	TemplateID       string          `json:"template_id"`
	ContractID       ContractID      `json:"contract_id"`
	Payload          json.RawMessage `json:"payload"`
	CreatedEventBlob string          `json:"created_event_blob,omitempty"`
	CreatedAt        string          `json:"created_at,omitempty"`
}

func ContractIDsFromStrings(ids []string) []ContractID {
	cids := make([]ContractID, len(ids))
	for i, id := range ids {
		cids[i] = ContractID(id)
	}
	return cids
}
