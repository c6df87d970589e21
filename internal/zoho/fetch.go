package zoho

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
)

const detailLimit = 1200

// Prefer orders the report request variants.
type Prefer string

// Preferences.
const (
	PreferAuto Prefer = "auto"
	PreferXLSX Prefer = "xlsx"
	PreferJSON Prefer = "json"
)

// ParsePrefer accepts auto, xlsx or json; empty means auto.
func ParsePrefer(s string) (Prefer, error) {
	switch p := Prefer(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferAuto, nil
	case PreferAuto, PreferXLSX, PreferJSON:
		return p, nil
	default:
		return "", fmt.Errorf("unknown format preference %q (want auto, xlsx or json)", s)
	}
}

// Variant is one way of asking for the trial balance report.
type Variant struct {
	Params url.Values
	Name   string
}

var (
	variantXLSX       = Variant{Name: "xlsx", Params: url.Values{"export_type": {"xlsx"}}}
	variantXLS        = Variant{Name: "xls", Params: url.Values{"export_format": {"xls"}}}
	variantJSON       = Variant{Name: "json", Params: url.Values{}}
	variantJSONCustom = Variant{Name: "json_custom_range", Params: url.Values{"filter_by": {"DateRange.Custom"}}}
)

// Variants returns the request variants to try, in order.
func Variants(prefer Prefer) []Variant {
	if prefer == PreferJSON {
		return []Variant{variantJSON, variantJSONCustom, variantXLSX, variantXLS}
	}
	return []Variant{variantXLSX, variantXLS, variantJSON, variantJSONCustom}
}

// FetchRequest identifies one trial balance report.
type FetchRequest struct {
	Period      model.Period
	Region      model.Region
	OrgID       string
	AccessToken string
	Prefer      Prefer
}

// FetchResult is the first successful response.
type FetchResult struct {
	Variant string
	URL     string
	Payload model.RawPayload
	Status  int
}

// FetchError reports that every variant was rejected.
type FetchError struct {
	Detail string
	Tried  []string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("trial balance request failed after %d variants (last status %d): %s", len(e.Tried), e.Status, e.Detail)
}

func (e *FetchError) Unwrap() error { return common.ErrUpstreamRequest }

// ReportURL builds the trial balance URL for one variant.
func ReportURL(apiBase string, req FetchRequest, v Variant) string {
	q := url.Values{}
	q.Set("organization_id", req.OrgID)
	q.Set("from_date", req.Period.FromString())
	q.Set("to_date", req.Period.ToString())
	for k, vals := range v.Params {
		for _, val := range vals {
			q.Add(k, val)
		}
	}
	return apiBase + "/books/v3/reports/trialbalance?" + q.Encode()
}

// FetchTrialBalance tries each variant until one returns 2xx. Transient
// failures are retried per variant; a 4xx moves on to the next variant.
func (c *Client) FetchTrialBalance(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if strings.TrimSpace(req.OrgID) == "" {
		return nil, fmt.Errorf("%w: organization id is required", common.ErrInvalidRequest)
	}
	hosts, err := c.cfg.HostsFor(req.Region)
	if err != nil {
		return nil, err
	}

	fetchErr := &FetchError{}
	for _, v := range Variants(req.Prefer) {
		u := ReportURL(hosts.API, req, v)
		fetchErr.Tried = append(fetchErr.Tried, u)

		var resp *response
		err := common.WithRetry(ctx, func() error {
			r, getErr := c.get(ctx, u, req.AccessToken)
			if getErr != nil {
				return getErr
			}
			resp = r
			if common.RetryableStatus(r.Status) {
				return common.ClassifyStatus(r.Status, fmt.Errorf("%w: status %d", common.ErrUpstreamRequest, r.Status))
			}
			return nil
		}, c.cfg.Retry)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil && resp.OK() {
			c.logger.Info("fetched trial balance",
				"region", req.Region,
				"variant", v.Name,
				"status", resp.Status,
				"bytes", len(resp.Body))
			return &FetchResult{
				Variant: v.Name,
				URL:     u,
				Status:  resp.Status,
				Payload: model.RawPayload{
					ContentType:        resp.Header.Get("Content-Type"),
					ContentDisposition: resp.Header.Get("Content-Disposition"),
					Body:               resp.Body,
				},
			}, nil
		}

		if resp != nil {
			fetchErr.Status = resp.Status
			fetchErr.Detail = clip(string(resp.Body), detailLimit)
		} else {
			fetchErr.Status = 0
			fetchErr.Detail = clip(err.Error(), detailLimit)
		}
		c.logger.Debug("trial balance variant rejected",
			"region", req.Region,
			"variant", v.Name,
			"status", fetchErr.Status)
	}

	return nil, fetchErr
}
