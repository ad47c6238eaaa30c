package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit/offset, or page/size when no limit is given. Pages
// are zero-based.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	if limit <= 0 {
		if size, _ := strconv.Atoi(c.QueryParam("size")); size > 0 {
			limit = size
			if page, _ := strconv.Atoi(c.QueryParam("page")); page > 0 {
				offset = math.MaxInt
				if page <= math.MaxInt/clamp(size) {
					offset = page * clamp(size)
				}
			}
		}
	}

	return Params{Limit: clamp(limit), Offset: max(offset, 0)}
}

func clamp(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// NewResponse reports HasMore without summing offset and limit, so a
// client-supplied offset near MaxInt cannot wrap around.
func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset < total && limit < total-offset,
	}
}
