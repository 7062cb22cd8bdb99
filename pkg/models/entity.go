package models

import "strings"

// Entity is a single raw mention waiting to be resolved.
//
// ClusterID is the back-reference of the cluster membership: when set, the
// referenced cluster lists this entity in its EntityIDs and vice versa.
type Entity struct {
	ID            string  `gorm:"primaryKey;size:255" json:"entity_id"`
	Mention       string  `gorm:"not null" json:"mention"`
	Source        string  `gorm:"uniqueIndex:idx_entity_source;not null;size:255" json:"entity_source"`
	SourceID      string  `gorm:"uniqueIndex:idx_entity_source;not null;size:255" json:"entity_source_id"`
	MentionVector Vector  `gorm:"serializer:json" json:"mention_vector"`
	ClusterID     *string `gorm:"index;size:255" json:"cluster_id"`
}

// TableName returns the table name for Entity.
func (Entity) TableName() string {
	return "entities"
}

// HasCluster reports whether the entity is attached to a cluster.
func (e *Entity) HasCluster() bool {
	return e.ClusterID != nil
}

// ClusterIDOrEmpty returns the cluster id, or "" for unlabeled entities.
func (e *Entity) ClusterIDOrEmpty() string {
	if e.ClusterID == nil {
		return ""
	}
	return *e.ClusterID
}

// SourceKey returns the composite external reference used for uniqueness.
func (e *Entity) SourceKey() SourceKey {
	return SourceKey{Source: e.Source, SourceID: e.SourceID}
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	c.MentionVector = e.MentionVector.Clone()
	if e.ClusterID != nil {
		id := *e.ClusterID
		c.ClusterID = &id
	}
	return &c
}

// Validate checks the fields every entity must carry.
func (e *Entity) Validate() error {
	switch {
	case strings.TrimSpace(e.Mention) == "":
		return Invalid(ResourceEntity, e.ID, "mention is required")
	case e.Source == "" || e.SourceID == "":
		return Invalid(ResourceEntity, e.ID, "entity_source and entity_source_id are required")
	}
	return nil
}

// SourceKey identifies an entity by its external reference.
type SourceKey struct {
	Source   string
	SourceID string
}

// String renders the key as "source/source_id".
func (k SourceKey) String() string {
	return k.Source + "/" + k.SourceID
}
