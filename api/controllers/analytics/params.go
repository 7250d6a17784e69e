package analytics

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/farmfresh/marketplace-backend/api/validators"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
)

const reportDateLayout = "2006-01-02"

// windowDays reads ?days=. Range checks are left to the service so an
// out-of-range window reports INVALID_RANGE.
func windowDays(r *http.Request, fallback int) (int, error) {
	return validators.ParseQueryInt(r, "days", fallback, math.MinInt32, math.MaxInt32)
}

// reportDate reads an optional YYYY-MM-DD query value in loc.
func reportDate(r *http.Request, key string, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation(reportDateLayout, raw, loc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "dates must use YYYY-MM-DD").
			WithDetails(map[string]any{"field": key})
	}
	return &day, nil
}

func reportRange(r *http.Request, loc *time.Location) (*time.Time, *time.Time, error) {
	start, err := reportDate(r, "start", loc)
	if err != nil {
		return nil, nil, err
	}
	end, err := reportDate(r, "end", loc)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
