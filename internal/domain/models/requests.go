package models

// Requests for the price HTTP endpoints.

type TokenRequest struct {
	TokenID string `param:"tokenId" json:"tokenId" validate:"required,max=128"`
}

type HistoryRequest struct {
	TokenID string `param:"tokenId" json:"tokenId" validate:"required,max=128"`
	Limit   int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// ArchiveRequest bounds accept RFC3339, unix ms or unix seconds.
type ArchiveRequest struct {
	TokenID string `param:"tokenId" json:"tokenId" validate:"required,max=128"`
	From    string `query:"from" json:"from"`
	To      string `query:"to" json:"to"`
	Limit   int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=10000"`
}
