package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/batch"
	"github.com/persistorai/clustermap/internal/domain"
)

// Data API limits.
const (
	defaultBatchSize   = 1000
	maxBatchSize       = 10000
	maxClusterIDs      = 1000
	maxSearchQueryLen  = 512
	searchResultsLimit = 100000
)

// DataHandler exposes the configured backend over HTTP in the same wire
// format the client backend reads, so one server can feed another.
type DataHandler struct {
	backend domain.Backend
	log     *logrus.Logger
}

// NewDataHandler creates a DataHandler.
func NewDataHandler(backend domain.Backend, log *logrus.Logger) *DataHandler {
	return &DataHandler{backend: backend, log: log}
}

// Points returns one page of document rows.
func (h *DataHandler) Points(c *gin.Context) {
	pg := parsePage(c, "size", defaultBatchSize, maxBatchSize)

	pts, err := h.backend.FetchPointsBatch(c.Request.Context(), pg.Offset, pg.Limit)
	if err != nil {
		h.backendError(c, "points", err)
		return
	}

	c.JSON(http.StatusOK, batch.Records(pts))
}

type byClusterRequest struct {
	ClusterIDs []string `json:"cluster_ids"`
}

// ByCluster returns the document rows of the given leaf clusters.
func (h *DataHandler) ByCluster(c *gin.Context) {
	var req byClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "cluster_ids is required")
		return
	}

	if len(req.ClusterIDs) > maxClusterIDs {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "too many cluster ids")
		return
	}

	if len(req.ClusterIDs) == 0 {
		c.JSON(http.StatusOK, []batch.DocumentRecord{})
		return
	}

	pts, err := h.backend.FetchPointsByClusterIDs(c.Request.Context(), req.ClusterIDs)
	if err != nil {
		h.backendError(c, "points by cluster", err)
		return
	}

	c.JSON(http.StatusOK, batch.Records(pts))
}

// Clusters returns the whole hierarchy.
func (h *DataHandler) Clusters(c *gin.Context) {
	clusters, err := h.backend.FetchClusters(c.Request.Context())
	if err != nil {
		h.backendError(c, "clusters", err)
		return
	}

	c.JSON(http.StatusOK, clusters)
}

// Search returns the raw document ids matching q on the path accessor.
func (h *DataHandler) Search(c *gin.Context) {
	accessor := c.Param("accessor")
	query := c.Query("q")

	if len(query) > maxSearchQueryLen {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "query too long")
		return
	}

	ids, err := h.backend.FetchSearchResultIDs(c.Request.Context(), query, accessor)
	if err != nil {
		h.backendError(c, "search", err)
		return
	}

	if len(ids) > searchResultsLimit {
		ids = ids[:searchResultsLimit]
	}

	hits := make([]gin.H, len(ids))
	for i, id := range ids {
		hits[i] = gin.H{batch.ColDocumentID: id}
	}

	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (h *DataHandler) backendError(c *gin.Context, op string, err error) {
	if errors.Is(err, domain.ErrUnknownAccessor) {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	h.log.WithError(err).WithField("op", op).Warn("backend fetch failed")
	respondError(c, http.StatusBadGateway, ErrCodeBackendUnavailable, "backend unavailable, try again")
}
