package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// Embedder computes mention vectors for new entities.
type Embedder interface {
	// Embed returns the vector of text, or nil when none can be computed.
	Embed(text string) models.Vector
}

// EntityHandler serves the entity service (/api/v1/entity).
type EntityHandler struct {
	entities store.EntityRepository
	embedder Embedder
}

// NewEntityHandler creates a new EntityHandler. embedder may be nil, in
// which case entities are stored without a mention vector.
func NewEntityHandler(entities store.EntityRepository, embedder Embedder) *EntityHandler {
	return &EntityHandler{entities: entities, embedder: embedder}
}

// EntityIn is the request body for creating or updating an entity. An empty
// EntityID on create lets the repository mint one.
type EntityIn struct {
	EntityID       string `json:"entity_id" validate:"omitempty,max=255"`
	Mention        string `json:"mention" validate:"required"`
	EntitySource   string `json:"entity_source" validate:"required,max=255"`
	EntitySourceID string `json:"entity_source_id" validate:"required,max=255"`
}

// EntityOut is the entity representation in responses. ClusterID is empty
// for unlabeled entities.
type EntityOut struct {
	EntityID         string `json:"entity_id"`
	Mention          string `json:"mention"`
	EntitySource     string `json:"entity_source"`
	EntitySourceID   string `json:"entity_source_id"`
	HasCluster       bool   `json:"has_cluster"`
	ClusterID        string `json:"cluster_id"`
	HasMentionVector bool   `json:"has_mention_vector"`
}

// DeleteEntitiesIn is the request body for bulk deletion.
type DeleteEntitiesIn struct {
	EntityIDs []string `json:"entity_ids" validate:"required,min=1,dive,required"`
}

func entityToOut(e *models.Entity) EntityOut {
	return EntityOut{
		EntityID:         e.ID,
		Mention:          e.Mention,
		EntitySource:     e.Source,
		EntitySourceID:   e.SourceID,
		HasCluster:       e.HasCluster(),
		ClusterID:        e.ClusterIDOrEmpty(),
		HasMentionVector: e.MentionVector.Present(),
	}
}

func entitiesToOut(es []*models.Entity) []EntityOut {
	out := make([]EntityOut, len(es))
	for i, e := range es {
		out[i] = entityToOut(e)
	}
	return out
}

func (h *EntityHandler) fromIn(in *EntityIn) *models.Entity {
	e := &models.Entity{
		ID:       in.EntityID,
		Mention:  in.Mention,
		Source:   in.EntitySource,
		SourceID: in.EntitySourceID,
	}
	if h.embedder != nil {
		e.MentionVector = h.embedder.Embed(in.Mention)
	}
	return e
}

// List handles GET /entity/.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.entities.ListEntities(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, entitiesToOut(all))
}

// Get handles GET /entity/{entityID}.
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.entities.GetEntity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, entityToOut(e))
}

// ListBySource handles GET /entity/source/{source}.
func (h *EntityHandler) ListBySource(w http.ResponseWriter, r *http.Request) {
	es, err := h.entities.ListEntitiesBySource(r.Context(), chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, entitiesToOut(es))
}

// GetBySource handles GET /entity/source/{source}/{sourceID}.
func (h *EntityHandler) GetBySource(w http.ResponseWriter, r *http.Request) {
	e, err := h.entities.GetEntityBySourceID(r.Context(), chi.URLParam(r, "source"), chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, entityToOut(e))
}

// Next handles GET /next-entity?num=N: up to N distinct random unlabeled
// entities, default 1.
func (h *EntityHandler) Next(w http.ResponseWriter, r *http.Request) {
	num := 1
	if raw := r.URL.Query().Get("num"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			BadRequest(w, "num must be an integer")
			return
		}
		if n < 1 {
			UnprocessableEntity(w, "num must be at least 1")
			return
		}
		num = n
	}

	es, err := h.entities.RandomUnlabeledN(r.Context(), num)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, entitiesToOut(es))
}

// Create handles POST /entity/create.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in EntityIn
	if !decodeAndValidate(w, r, &in) {
		return
	}

	e, err := h.entities.AddEntity(r.Context(), h.fromIn(&in))
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Entity created", logger.EntityID(e.ID))
	WriteJSONCreated(w, entityToOut(e))
}

// CreateBulk handles POST /entities/create. Every item is validated before
// any is stored; items whose id or source pair already exists are skipped.
func (h *EntityHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var in []EntityIn
	if !decodeJSONBody(w, r, &in) {
		return
	}
	batch := make([]*models.Entity, len(in))
	for i := range in {
		if err := validate.Struct(&in[i]); err != nil {
			UnprocessableEntity(w, "item "+strconv.Itoa(i)+": "+validationDetail(err))
			return
		}
		batch[i] = h.fromIn(&in[i])
		if err := batch[i].Validate(); err != nil {
			UnprocessableEntity(w, "item "+strconv.Itoa(i)+": "+err.Error())
			return
		}
	}

	created := make([]EntityOut, 0, len(batch))
	skipped := 0
	for _, item := range batch {
		e, err := h.entities.AddEntity(r.Context(), item)
		if errors.Is(err, models.ErrAlreadyExists) {
			skipped++
			continue
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		created = append(created, entityToOut(e))
	}
	logger.InfoCtx(r.Context(), "Entities created", logger.KeyCount, len(created), "skipped", skipped)
	WriteJSONCreated(w, created)
}

// Update handles POST /entity/{entityID}/update. Clustered entities cannot
// be updated.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in EntityIn
	if !decodeAndValidate(w, r, &in) {
		return
	}
	in.EntityID = chi.URLParam(r, "entityID")

	e, err := h.entities.UpdateEntity(r.Context(), h.fromIn(&in))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, entityToOut(e))
}

// Delete handles DELETE /entity/{entityID}/delete.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityID")
	if err := h.entities.DeleteEntity(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Entity deleted", logger.EntityID(id))
	WriteNoContent(w)
}

// DeleteBulk handles DELETE /entities/delete. Unknown ids are skipped; if
// any known entity is in a cluster nothing is deleted.
func (h *EntityHandler) DeleteBulk(w http.ResponseWriter, r *http.Request) {
	var in DeleteEntitiesIn
	if !decodeAndValidate(w, r, &in) {
		return
	}

	ctx := r.Context()
	existing := make([]string, 0, len(in.EntityIDs))
	for _, id := range in.EntityIDs {
		e, err := h.entities.GetEntity(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if e.HasCluster() {
			writeError(w, r, models.Conflict(models.ResourceEntity, id, "entity is in cluster "+e.ClusterIDOrEmpty()))
			return
		}
		existing = append(existing, id)
	}

	for _, id := range existing {
		if err := h.entities.DeleteEntity(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			writeError(w, r, err)
			return
		}
	}
	logger.InfoCtx(ctx, "Entities deleted", logger.KeyCount, len(existing))
	WriteNoContent(w)
}

// ExportCSV handles GET /export/csv.
func (h *EntityHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	all, err := h.entities.ListEntities(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows := make([][]string, 0, len(all))
	for _, e := range all {
		vector := ""
		if e.MentionVector.Present() {
			vector = formatVector(e.MentionVector)
		}
		rows = append(rows, []string{
			e.ID,
			e.Mention,
			e.Source,
			e.SourceID,
			strconv.FormatBool(e.HasCluster()),
			e.ClusterIDOrEmpty(),
			strconv.FormatBool(e.MentionVector.Present()),
			vector,
		})
	}
	writeCSV(w, r, "entities.csv", entityCSVHeader, rows)
}
