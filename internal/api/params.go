package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxOffset bounds paging offsets. The largest maps hold a few million rows.
const maxOffset = 50_000_000

var errInvalidSessionID = errors.New("session id must be a UUID")

// page is an offset/limit pair read from the query string.
type page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// parsePage reads ?offset= and the named limit parameter. A missing or
// non-positive limit uses def; larger ones are capped at ceiling. Bad
// offsets read as zero.
func parsePage(c *gin.Context, limitParam string, def, ceiling int) page {
	p := page{Limit: def}

	if v, err := strconv.Atoi(c.Query(limitParam)); err == nil && v > 0 {
		p.Limit = min(v, ceiling)
	}

	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		p.Offset = min(v, maxOffset)
	}

	return p
}

// sessionID returns the canonical form of the :id path parameter.
func sessionID(c *gin.Context) (string, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", errInvalidSessionID
	}

	return id.String(), nil
}
