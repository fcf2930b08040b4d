package pkg

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usersvc/internal/domain"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ParsePaginationRequest reads page and limit from the query string.
// Missing or unparsable values fall back to the defaults and limit is capped
// at MaxLimit. Values below 1 are kept so the caller can reject them.
func ParsePaginationRequest(c *gin.Context) domain.PaginationRequest {
	return CapLimit(domain.PaginationRequest{
		Page:  queryInt(c, "page", DefaultPage),
		Limit: queryInt(c, "limit", DefaultLimit),
	})
}

// DefaultPagination is the request used for fields a caller leaves out.
func DefaultPagination() domain.PaginationRequest {
	return domain.PaginationRequest{Page: DefaultPage, Limit: DefaultLimit}
}

// CapLimit caps limit at MaxLimit. Values below 1 are kept so the caller can
// reject them.
func CapLimit(req domain.PaginationRequest) domain.PaginationRequest {
	req.Limit = min(req.Limit, MaxLimit)
	return req
}

func queryInt(c *gin.Context, key string, def int) int {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
