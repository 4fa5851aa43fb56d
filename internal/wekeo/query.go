package wekeo

import (
	"fmt"
	"strings"
	"time"
)

// DefaultItemsPerPage is the page size requested from the search endpoint.
const DefaultItemsPerPage = 200

const (
	dateLayout  = "2006-01-02"
	startLayout = "2006-01-02T00:00:00.000Z"
	endLayout   = "2006-01-02T23:59:59.999Z"
)

// DownloadRequest is the HDA search payload for one product.
type DownloadRequest struct {
	DatasetID    string     `json:"dataset_id"`
	ProductType  string     `json:"productType,omitempty"`
	BBox         [4]float64 `json:"bbox"`
	StartDate    string     `json:"startdate"`
	EndDate      string     `json:"enddate"`
	ItemsPerPage int        `json:"itemsPerPage"`
	StartIndex   int        `json:"startIndex"`
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// FormatStart renders the first millisecond of the day.
func FormatStart(t time.Time) string {
	return t.UTC().Format(startLayout)
}

// FormatEnd renders the last millisecond of the day.
func FormatEnd(t time.Time) string {
	return t.UTC().Format(endLayout)
}

// BuildRequests creates one request per product, in product order.
// start and end are inclusive YYYY-MM-DD dates. An empty product list
// yields a single request without a product filter.
func BuildRequests(datasetID string, products []string, bbox [4]float64, start, end string) ([]DownloadRequest, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	base := DownloadRequest{
		DatasetID:    datasetID,
		BBox:         bbox,
		StartDate:    FormatStart(from),
		EndDate:      FormatEnd(to),
		ItemsPerPage: DefaultItemsPerPage,
		StartIndex:   0,
	}

	if len(products) == 0 {
		return []DownloadRequest{base}, nil
	}

	reqs := make([]DownloadRequest, 0, len(products))
	for _, p := range products {
		r := base
		r.ProductType = p
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// Label names the request in logs and reports.
func (r DownloadRequest) Label() string {
	if r.ProductType == "" {
		return r.DatasetID
	}
	return r.ProductType
}
