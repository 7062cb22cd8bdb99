package handlers

import (
	"net/http"

	"github.com/eecworkbench/eec/pkg/clustering"
	"github.com/eecworkbench/eec/pkg/store"
)

// MentionHandler serves the mention service (/api/v1/mention): it proposes
// the next mention to label together with the most similar clusters.
type MentionHandler struct {
	entities store.EntityRepository
	method   clustering.Method
}

// NewMentionHandler creates a new MentionHandler.
func NewMentionHandler(entities store.EntityRepository, method clustering.Method) *MentionHandler {
	return &MentionHandler{entities: entities, method: method}
}

// MentionOut is the response of GET /.
type MentionOut struct {
	EntityID             string   `json:"entity_id"`
	Mention              string   `json:"mention"`
	EntitySource         string   `json:"entity_source"`
	EntitySourceID       string   `json:"entity_source_id"`
	PossibleClusterIDs   []string `json:"possible_cluster_ids"`
	PossibleClusterNames []string `json:"possible_cluster_names"`
}

// Next handles GET /.
func (h *MentionHandler) Next(w http.ResponseWriter, r *http.Request) {
	e, err := h.entities.RandomUnlabeled(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	candidates, err := h.method.PossibleClusters(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := MentionOut{
		EntityID:             e.ID,
		Mention:              e.Mention,
		EntitySource:         e.Source,
		EntitySourceID:       e.SourceID,
		PossibleClusterIDs:   make([]string, len(candidates)),
		PossibleClusterNames: make([]string, len(candidates)),
	}
	for i, c := range candidates {
		out.PossibleClusterIDs[i] = c.ID
		out.PossibleClusterNames[i] = c.Name
	}
	WriteJSONOK(w, out)
}
