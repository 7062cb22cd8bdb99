package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/models"
)

var (
	entityCSVHeader  = []string{"entity_id", "mention", "entity_source", "entity_source_id", "in_cluster", "cluster_id", "has_mention_vector", "mention_vector"}
	clusterCSVHeader = []string{"cluster_id", "cluster_name", "entity_ids", "cluster_vector"}
)

// writeCSV sends rows as a CSV attachment.
func writeCSV(w http.ResponseWriter, r *http.Request, filename string, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	_ = cw.WriteAll(rows)
	if err := cw.Error(); err != nil {
		logger.WarnCtx(r.Context(), "CSV export interrupted", logger.Err(err))
	}
}

// formatVector renders a vector as a bracketed list, e.g. "[0.5, -1]".
func formatVector(v models.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// formatIDs renders ids as a bracketed, quoted list, e.g. "['1', '2']".
func formatIDs(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "'" + id + "'"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
