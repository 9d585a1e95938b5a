package canvases

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/platinummonkey/atrium/pkg/apperrors"
)

// DefaultCanvasName names the canvas created for a new workspace and by backfill
const DefaultCanvasName = "Main Canvas"

// MaxNameLength is the longest accepted canvas name, in characters
const MaxNameLength = 120

// Canvas is a board within a workspace that holds cards
type Canvas struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	IsDefault   bool      `json:"is_default"`
	Position    int       `json:"position"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BackfillReport summarizes what a backfill run changed
type BackfillReport struct {
	WorkspacesScanned int `json:"workspaces_scanned"`
	CanvasesCreated   int `json:"canvases_created"`
	DefaultsPromoted  int `json:"defaults_promoted"`
	CardsReassigned   int `json:"cards_reassigned"`
}

// Changed reports whether the run modified anything
func (r BackfillReport) Changed() bool {
	return r.CanvasesCreated+r.DefaultsPromoted+r.CardsReassigned > 0
}

// ValidateName trims a canvas name and checks its length
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation("canvas name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperrors.Validation("canvas name must be at most %d characters", MaxNameLength)
	}
	return name, nil
}
