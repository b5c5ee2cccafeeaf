package orgs

import "time"

// Organization is the top-level tenant scope for roles and assignments.
type Organization struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Department is an optional sub-scope inside an organization.
type Department struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
