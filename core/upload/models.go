package upload

import (
	"time"

	"github.com/trezcool/tos/core/rbac"
)

type File struct {
	ID          string    `json:"id"`
	AgencyID    string    `json:"agency_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Backend     string    `json:"-"`
	Key         string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (f File) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: f.AgencyID, TenantID: f.TenantID, OwnerIDs: []string{f.OwnerID}}
}
