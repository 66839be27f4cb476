// Package httpapi contains the HTTP cloud transport: the client used by
// branch workers and the server handlers exposed by the cloud authority.
package httpapi

import (
	"time"

	"github.com/MythicalCosmic/smart-pos/internal/models"
)

// changeDTO is the JSON wire form of a change record.
type changeDTO struct {
	ID             string         `json:"id"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	Operation      string         `json:"operation"`
	Payload        map[string]any `json:"payload"`
	OriginBranch   string         `json:"origin_branch"`
	LocalTimestamp time.Time      `json:"local_timestamp"`
	Version        int64          `json:"version"`
}

type pushRequest struct {
	Branch  string      `json:"branch"`
	Records []changeDTO `json:"records"`
}

type rejectedDTO struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Permanent bool   `json:"permanent"`
}

type pushResponse struct {
	AcceptedIDs []string      `json:"accepted_ids"`
	Rejected    []rejectedDTO `json:"rejected,omitempty"`
}

type pullResponse struct {
	Records    []changeDTO `json:"records"`
	NextCursor string      `json:"next_cursor"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toDTO(r *models.ChangeRecord) changeDTO {
	return changeDTO{
		ID:             r.ID,
		EntityType:     r.EntityType,
		EntityID:       r.EntityID,
		Operation:      string(r.Operation),
		Payload:        r.Payload,
		OriginBranch:   r.OriginBranch,
		LocalTimestamp: r.LocalTimestamp,
		Version:        r.Version,
	}
}

func fromDTO(d changeDTO) *models.ChangeRecord {
	return &models.ChangeRecord{
		ID:             d.ID,
		EntityType:     d.EntityType,
		EntityID:       d.EntityID,
		Operation:      models.Operation(d.Operation),
		Payload:        d.Payload,
		OriginBranch:   d.OriginBranch,
		LocalTimestamp: d.LocalTimestamp,
		Version:        d.Version,
	}
}
