package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/catalog"
)

const (
	tablePeriods = "periods"
	tableEvents  = "events"
	tableLinks   = "resource_links"

	newestFirst = "created_at.desc,id.desc"
)

// Catalog is a catalog.Repository over the project's PostgREST tables.
// Requests carry the signed-in user's access token so row-level policies
// decide what may be written.
type Catalog struct {
	c   *Client
	now func() time.Time
}

var _ catalog.Repository = (*Catalog)(nil)

// Catalog returns the content repository backed by this project.
func (c *Client) Catalog() *Catalog {
	return &Catalog{c: c, now: time.Now}
}

func (k *Catalog) call(ctx context.Context, method, table string, q url.Values, body interface{}, prefer string, out interface{}) (*http.Response, error) {
	r := request{
		method: method,
		path:   "/rest/v1/" + table,
		query:  q,
		body:   body,
		bearer: k.c.accessToken(ctx),
	}
	if prefer != "" {
		r.header = http.Header{"Prefer": {prefer}}
	}
	resp, err := k.c.do(ctx, r, out)
	return resp, mapCatalogError(err)
}

// Postgres error classes PostgREST passes through as codes.
var invalidInputCodes = map[string]bool{
	"22P02": true, // invalid text representation (bad uuid)
	"22007": true, // invalid datetime format
	"22008": true, // datetime out of range
	"23502": true, // not null violation
	"23503": true, // foreign key violation
	"23505": true, // unique violation
	"23514": true, // check violation
}

func mapCatalogError(err error) error {
	if err == nil {
		return nil
	}
	apiErr, ok := asAPIError(err)
	switch {
	case !ok:
		if errors.Is(err, docportal.ErrBackendUnavailable) {
			return fmt.Errorf("%w: %w", catalog.ErrUnavailable, err)
		}
		return err
	case invalidInputCodes[apiErr.Code] || apiErr.Status == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", catalog.ErrInvalid, err)
	case apiErr.Code == "42501" || apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", catalog.ErrForbidden, err)
	default:
		return fmt.Errorf("%w: %w", catalog.ErrUnavailable, err)
	}
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

func withSelect(q url.Values, sel string) url.Values {
	q.Set("select", sel)
	return q
}

func one[T any](rows []T) (T, error) {
	var zero T
	if len(rows) == 0 {
		return zero, catalog.ErrNotFound
	}
	return rows[0], nil
}

func (k *Catalog) exists(ctx context.Context, table, id string) error {
	var rows []struct {
		ID string `json:"id"`
	}
	if _, err := k.call(ctx, http.MethodGet, table, withSelect(byID(id), "id"), nil, "", &rows); err != nil {
		if errors.Is(err, catalog.ErrInvalid) {
			return catalog.ErrNotFound
		}
		return err
	}
	_, err := one(rows)
	return err
}

/* ==== PERIODS ==== */

func (k *Catalog) ListPeriods(ctx context.Context) ([]catalog.Period, error) {
	rows := []catalog.Period{}
	_, err := k.call(ctx, http.MethodGet, tablePeriods, url.Values{"select": {"*"}, "order": {newestFirst}}, nil, "", &rows)
	return rows, err
}

func (k *Catalog) GetPeriod(ctx context.Context, id string) (catalog.Period, error) {
	var rows []catalog.Period
	if _, err := k.call(ctx, http.MethodGet, tablePeriods, withSelect(byID(id), "*"), nil, "", &rows); err != nil {
		if errors.Is(err, catalog.ErrInvalid) {
			return catalog.Period{}, catalog.ErrNotFound
		}
		return catalog.Period{}, err
	}
	return one(rows)
}

func (k *Catalog) CreatePeriod(ctx context.Context, in catalog.PeriodInput) (catalog.Period, error) {
	if err := catalog.ValidatePeriod(&in); err != nil {
		return catalog.Period{}, err
	}
	var rows []catalog.Period
	if _, err := k.call(ctx, http.MethodPost, tablePeriods, nil, in, "return=representation", &rows); err != nil {
		return catalog.Period{}, err
	}
	return one(rows)
}

func (k *Catalog) UpdatePeriod(ctx context.Context, id string, in catalog.PeriodInput) (catalog.Period, error) {
	if err := catalog.ValidatePeriod(&in); err != nil {
		return catalog.Period{}, err
	}
	var rows []catalog.Period
	if _, err := k.call(ctx, http.MethodPatch, tablePeriods, byID(id), in, "return=representation", &rows); err != nil {
		return catalog.Period{}, err
	}
	return one(rows)
}

// DeletePeriod removes the period's links and events before the period so
// the cascade holds even without ON DELETE CASCADE in the schema.
func (k *Catalog) DeletePeriod(ctx context.Context, id string) error {
	if _, err := k.GetPeriod(ctx, id); err != nil {
		return err
	}

	var events []struct {
		ID string `json:"id"`
	}
	q := url.Values{"select": {"id"}, "period_id": {"eq." + id}}
	if _, err := k.call(ctx, http.MethodGet, tableEvents, q, nil, "", &events); err != nil {
		return err
	}
	if len(events) > 0 {
		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		q := url.Values{"event_id": {"in.(" + strings.Join(ids, ",") + ")"}}
		if _, err := k.call(ctx, http.MethodDelete, tableLinks, q, nil, "", nil); err != nil {
			return err
		}
		if _, err := k.call(ctx, http.MethodDelete, tableEvents, url.Values{"period_id": {"eq." + id}}, nil, "", nil); err != nil {
			return err
		}
	}
	return k.deleteRow(ctx, tablePeriods, id)
}

func (k *Catalog) deleteRow(ctx context.Context, table, id string) error {
	var rows []struct {
		ID string `json:"id"`
	}
	if _, err := k.call(ctx, http.MethodDelete, table, withSelect(byID(id), "id"), nil, "return=representation", &rows); err != nil {
		return err
	}
	_, err := one(rows)
	return err
}

/* ==== EVENTS ==== */

func (k *Catalog) ListEvents(ctx context.Context) ([]catalog.Event, error) {
	rows := []catalog.Event{}
	_, err := k.call(ctx, http.MethodGet, tableEvents, url.Values{"select": {"*"}, "order": {newestFirst}}, nil, "", &rows)
	return rows, err
}

func (k *Catalog) EventsByPeriod(ctx context.Context, periodID string) ([]catalog.Event, error) {
	if err := k.exists(ctx, tablePeriods, periodID); err != nil {
		return nil, err
	}
	rows := []catalog.Event{}
	q := url.Values{"select": {"*"}, "period_id": {"eq." + periodID}, "order": {newestFirst}}
	_, err := k.call(ctx, http.MethodGet, tableEvents, q, nil, "", &rows)
	return rows, err
}

func (k *Catalog) GetEvent(ctx context.Context, id string) (catalog.EventDetail, error) {
	var rows []struct {
		catalog.Event
		Period *struct {
			Name string `json:"name"`
		} `json:"periods"`
		Links []catalog.ResourceLink `json:"resource_links"`
	}
	q := withSelect(byID(id), "*,periods(name),resource_links(*)")
	q.Set("resource_links.order", newestFirst)
	if _, err := k.call(ctx, http.MethodGet, tableEvents, q, nil, "", &rows); err != nil {
		if errors.Is(err, catalog.ErrInvalid) {
			return catalog.EventDetail{}, catalog.ErrNotFound
		}
		return catalog.EventDetail{}, err
	}
	row, err := one(rows)
	if err != nil {
		return catalog.EventDetail{}, err
	}

	detail := catalog.EventDetail{Event: row.Event, Links: row.Links}
	if row.Period != nil {
		detail.PeriodName = row.Period.Name
	}
	if detail.Links == nil {
		detail.Links = []catalog.ResourceLink{}
	}
	return detail, nil
}

func (k *Catalog) CreateEvent(ctx context.Context, in catalog.EventInput) (catalog.Event, error) {
	if err := catalog.ValidateEvent(&in); err != nil {
		return catalog.Event{}, err
	}
	var rows []catalog.Event
	if _, err := k.call(ctx, http.MethodPost, tableEvents, nil, in, "return=representation", &rows); err != nil {
		return catalog.Event{}, err
	}
	return one(rows)
}

func (k *Catalog) UpdateEvent(ctx context.Context, id string, in catalog.EventInput) (catalog.Event, error) {
	if err := catalog.ValidateEvent(&in); err != nil {
		return catalog.Event{}, err
	}
	body := map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
		"period_id":   in.PeriodID,
		"updated_at":  k.now().UTC().Format(time.RFC3339Nano),
	}
	var rows []catalog.Event
	if _, err := k.call(ctx, http.MethodPatch, tableEvents, byID(id), body, "return=representation", &rows); err != nil {
		return catalog.Event{}, err
	}
	return one(rows)
}

func (k *Catalog) DeleteEvent(ctx context.Context, id string) error {
	if err := k.exists(ctx, tableEvents, id); err != nil {
		return err
	}
	if _, err := k.call(ctx, http.MethodDelete, tableLinks, url.Values{"event_id": {"eq." + id}}, nil, "", nil); err != nil {
		return err
	}
	return k.deleteRow(ctx, tableEvents, id)
}

/* ==== LINKS ==== */

func (k *Catalog) ListLinks(ctx context.Context) ([]catalog.ResourceLink, error) {
	rows := []catalog.ResourceLink{}
	_, err := k.call(ctx, http.MethodGet, tableLinks, url.Values{"select": {"*"}, "order": {newestFirst}}, nil, "", &rows)
	return rows, err
}

func (k *Catalog) LinksByEvent(ctx context.Context, eventID string) ([]catalog.ResourceLink, error) {
	if err := k.exists(ctx, tableEvents, eventID); err != nil {
		return nil, err
	}
	rows := []catalog.ResourceLink{}
	q := url.Values{"select": {"*"}, "event_id": {"eq." + eventID}, "order": {newestFirst}}
	_, err := k.call(ctx, http.MethodGet, tableLinks, q, nil, "", &rows)
	return rows, err
}

func (k *Catalog) CreateLink(ctx context.Context, in catalog.LinkInput) (catalog.ResourceLink, error) {
	if err := catalog.ValidateLink(&in); err != nil {
		return catalog.ResourceLink{}, err
	}
	var rows []catalog.ResourceLink
	if _, err := k.call(ctx, http.MethodPost, tableLinks, nil, in, "return=representation", &rows); err != nil {
		return catalog.ResourceLink{}, err
	}
	return one(rows)
}

func (k *Catalog) UpdateLink(ctx context.Context, id string, in catalog.LinkInput) (catalog.ResourceLink, error) {
	if err := catalog.ValidateLink(&in); err != nil {
		return catalog.ResourceLink{}, err
	}
	var rows []catalog.ResourceLink
	if _, err := k.call(ctx, http.MethodPatch, tableLinks, byID(id), in, "return=representation", &rows); err != nil {
		return catalog.ResourceLink{}, err
	}
	return one(rows)
}

func (k *Catalog) DeleteLink(ctx context.Context, id string) error {
	return k.deleteRow(ctx, tableLinks, id)
}

/* ==== DASHBOARD ==== */

func (k *Catalog) count(ctx context.Context, table string) (int64, error) {
	resp, err := k.call(ctx, http.MethodHead, table, url.Values{"select": {"*"}}, nil, "count=exact", nil)
	if err != nil {
		return 0, err
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// parseContentRangeTotal reads the total from "0-24/42" or "*/0".
func parseContentRangeTotal(v string) (int64, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("%w: missing count in Content-Range %q", catalog.ErrUnavailable, v)
	}
	n, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad Content-Range %q", catalog.ErrUnavailable, v)
	}
	return n, nil
}

func (k *Catalog) Stats(ctx context.Context) (catalog.Stats, error) {
	var s catalog.Stats
	var err error
	if s.TotalPeriods, err = k.count(ctx, tablePeriods); err != nil {
		return catalog.Stats{}, err
	}
	if s.TotalEvents, err = k.count(ctx, tableEvents); err != nil {
		return catalog.Stats{}, err
	}
	if s.TotalLinks, err = k.count(ctx, tableLinks); err != nil {
		return catalog.Stats{}, err
	}
	return s, nil
}

// RecentActivity merges the newest rows of the three tables.
func (k *Catalog) RecentActivity(ctx context.Context, limit int) ([]catalog.Activity, error) {
	if limit <= 0 {
		limit = catalog.DefaultActivityLimit
	}

	sources := []struct {
		kind  catalog.ActivityKind
		table string
		sel   string
	}{
		{catalog.ActivityPeriod, tablePeriods, "id,title:name,created_at"},
		{catalog.ActivityEvent, tableEvents, "id,title,created_at"},
		{catalog.ActivityLink, tableLinks, "id,title,created_at"},
	}

	var out []catalog.Activity
	for _, src := range sources {
		var rows []catalog.Activity
		q := url.Values{"select": {src.sel}, "order": {newestFirst}, "limit": {strconv.Itoa(limit)}}
		if _, err := k.call(ctx, http.MethodGet, src.table, q, nil, "", &rows); err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i].Kind = src.kind
		}
		out = append(out, rows...)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []catalog.Activity{}
	}
	return out, nil
}
