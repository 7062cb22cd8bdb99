package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// ClusterHandler serves the cluster service (/api/v1/clusters).
type ClusterHandler struct {
	clusters store.ClusterRepository
}

// NewClusterHandler creates a new ClusterHandler.
func NewClusterHandler(clusters store.ClusterRepository) *ClusterHandler {
	return &ClusterHandler{clusters: clusters}
}

// ClusterIn is the request body for POST /cluster/create.
type ClusterIn struct {
	ClusterID   string `json:"cluster_id" validate:"omitempty,max=255"`
	ClusterName string `json:"cluster_name" validate:"required"`
}

// ClusterAddEntityIn is the request body for POST /cluster/{id}/add-entities.
type ClusterAddEntityIn struct {
	EntityIDs []string `json:"entity_ids" validate:"required,min=1,dive,required"`
}

// DeleteClustersIn is the request body for DELETE /delete.
type DeleteClustersIn struct {
	ClusterIDs []string `json:"cluster_ids" validate:"required,min=1,dive,required"`
}

// ClusterOut is the cluster representation in responses.
type ClusterOut struct {
	ClusterID     string        `json:"cluster_id"`
	ClusterName   string        `json:"cluster_name"`
	EntityIDs     []string      `json:"entity_ids"`
	ClusterVector models.Vector `json:"cluster_vector"`
}

func clusterToOut(c *models.Cluster) ClusterOut {
	out := ClusterOut{
		ClusterID:     c.ID,
		ClusterName:   c.Name,
		EntityIDs:     c.EntityIDs,
		ClusterVector: c.Vector,
	}
	if out.EntityIDs == nil {
		out.EntityIDs = []string{}
	}
	if out.ClusterVector == nil {
		out.ClusterVector = models.Vector{}
	}
	return out
}

// List handles GET /.
func (h *ClusterHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.clusters.ListClusters(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ClusterOut, len(all))
	for i, c := range all {
		out[i] = clusterToOut(c)
	}
	WriteJSONOK(w, out)
}

// Get handles GET /cluster/{clusterID}.
func (h *ClusterHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.clusters.GetCluster(r.Context(), chi.URLParam(r, "clusterID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, clusterToOut(c))
}

// Create handles POST /cluster/create.
func (h *ClusterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in ClusterIn
	if !decodeAndValidate(w, r, &in) {
		return
	}

	c, err := h.clusters.AddCluster(r.Context(), &models.Cluster{ID: in.ClusterID, Name: in.ClusterName})
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Cluster created", logger.ClusterID(c.ID))
	WriteJSONCreated(w, clusterToOut(c))
}

// Delete handles DELETE /cluster/{clusterID}. Only empty clusters can be
// deleted.
func (h *ClusterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clusterID")
	if err := h.clusters.DeleteCluster(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Cluster deleted", logger.ClusterID(id))
	WriteNoContent(w)
}

// DeleteBulk handles DELETE /delete, all or nothing.
func (h *ClusterHandler) DeleteBulk(w http.ResponseWriter, r *http.Request) {
	var in DeleteClustersIn
	if !decodeAndValidate(w, r, &in) {
		return
	}
	if err := h.clusters.DeleteClusters(r.Context(), in.ClusterIDs); err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Clusters deleted", logger.KeyCount, len(in.ClusterIDs))
	WriteNoContent(w)
}

// DeleteAll handles DELETE /delete/all.
func (h *ClusterHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.clusters.DeleteAllClusters(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "All clusters deleted")
	WriteNoContent(w)
}

// AddEntity handles POST /cluster/{clusterID}/add-entity?entity_id=ID.
func (h *ClusterHandler) AddEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		UnprocessableEntity(w, "entity_id query parameter is required")
		return
	}

	c, err := h.clusters.AddEntityToCluster(r.Context(), chi.URLParam(r, "clusterID"), entityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.DebugCtx(r.Context(), "Entity added to cluster", logger.ClusterID(c.ID), logger.EntityID(entityID))
	WriteJSONOK(w, clusterToOut(c))
}

// AddEntities handles POST /cluster/{clusterID}/add-entities, all or
// nothing.
func (h *ClusterHandler) AddEntities(w http.ResponseWriter, r *http.Request) {
	var in ClusterAddEntityIn
	if !decodeAndValidate(w, r, &in) {
		return
	}

	c, err := h.clusters.AddEntitiesToCluster(r.Context(), chi.URLParam(r, "clusterID"), in.EntityIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, clusterToOut(c))
}

// RemoveEntity handles POST /cluster/{clusterID}/remove-entity?entity_id=ID.
func (h *ClusterHandler) RemoveEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		UnprocessableEntity(w, "entity_id query parameter is required")
		return
	}

	c, err := h.clusters.RemoveEntityFromCluster(r.Context(), chi.URLParam(r, "clusterID"), entityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, clusterToOut(c))
}

// ExportCSV handles GET /export/csv.
func (h *ClusterHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	all, err := h.clusters.ListClusters(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows := make([][]string, 0, len(all))
	for _, c := range all {
		rows = append(rows, []string{c.ID, c.Name, formatIDs(c.EntityIDs), formatVector(c.Vector)})
	}
	writeCSV(w, r, "clusters.csv", clusterCSVHeader, rows)
}
