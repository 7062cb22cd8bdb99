package models

import "slices"

// Cluster groups entities believed to denote the same referent.
//
// EntityIDs has set semantics; insertion order is kept for stable output.
// Vector is derived from the members and recomputed on every membership
// change.
type Cluster struct {
	ID        string   `gorm:"primaryKey;size:255" json:"cluster_id"`
	Name      string   `gorm:"not null" json:"cluster_name"`
	EntityIDs []string `gorm:"-" json:"entity_ids"`
	Vector    Vector   `gorm:"serializer:json" json:"cluster_vector"`
}

// TableName returns the table name for Cluster.
func (Cluster) TableName() string {
	return "clusters"
}

// HasMember reports whether entityID is in the member set.
func (c *Cluster) HasMember(entityID string) bool {
	return slices.Contains(c.EntityIDs, entityID)
}

// IsEmpty reports whether the cluster has no members.
func (c *Cluster) IsEmpty() bool {
	return len(c.EntityIDs) == 0
}

// Clone returns a deep copy of the cluster.
func (c *Cluster) Clone() *Cluster {
	cp := *c
	cp.EntityIDs = append([]string{}, c.EntityIDs...)
	cp.Vector = c.Vector.Clone()
	return &cp
}
