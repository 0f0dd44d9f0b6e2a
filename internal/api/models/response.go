// Package models holds the request and response bodies of the HTTP API
package models

import (
	"time"

	"github.com/google/uuid"

	"assetrecon/internal/assets"
)

// AssetResponse represents an asset in API responses
type AssetResponse struct {
	ID         uuid.UUID             `json:"id" example:"7f9c2ba4-e88f-11ee-a3f2-0242ac120002" description:"Asset ID"`
	Fields     map[string]string     `json:"fields" description:"Current field values"`
	Ledger     assets.PriorityLedger `json:"ledger" description:"Highest priority that ever wrote each field"`
	Version    int                   `json:"version" example:"3" description:"Optimistic concurrency version"`
	Created    time.Time             `json:"created" description:"Creation time"`
	Modified   time.Time             `json:"modified" description:"Last modification time"`
	Components []ComponentResponse   `json:"components" description:"Owned components"`
}

// ComponentResponse represents a component in API responses
type ComponentResponse struct {
	ID       uuid.UUID             `json:"id"`
	Kind     assets.ComponentKind  `json:"kind" example:"ethernet"`
	SlotKey  string                `json:"slot_key" example:"94:40:C9:AA:BB:01"`
	Fields   map[string]string     `json:"fields"`
	Ledger   assets.PriorityLedger `json:"ledger"`
	Modified time.Time             `json:"modified"`
}

// AssetListResponse represents a paginated list of assets
type AssetListResponse struct {
	TotalAssets int             `json:"total_assets" example:"21" description:"Total number of assets"`
	CurrentPage int             `json:"current_page" example:"1" description:"Current page number"`
	PageSize    int             `json:"page_size" example:"10" description:"Number of assets per page"`
	TotalPages  int             `json:"total_pages" example:"3" description:"Total number of pages"`
	Data        []AssetResponse `json:"data" description:"List of assets for the current page"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message" example:"Asset not found" description:"Error message"`
	Detail  interface{} `json:"detail,omitempty" description:"Structured error detail"`
}

// ConvertAsset converts an asset and its components to an AssetResponse
func ConvertAsset(asset assets.Asset, components []assets.Component) AssetResponse {
	resp := AssetResponse{
		ID:         asset.ID,
		Fields:     asset.Fields,
		Ledger:     asset.Ledger,
		Version:    asset.Version,
		Created:    asset.Created,
		Modified:   asset.Modified,
		Components: make([]ComponentResponse, 0, len(components)),
	}
	for _, c := range components {
		resp.Components = append(resp.Components, ComponentResponse{
			ID:       c.ID,
			Kind:     c.Kind,
			SlotKey:  c.SlotKey,
			Fields:   c.Fields,
			Ledger:   c.Ledger,
			Modified: c.Modified,
		})
	}
	return resp
}
