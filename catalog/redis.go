package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "docportal:cat"

// RedisRepository stores each entity as a hash and keeps creation-ordered
// sorted sets for the global lists and the parent-child indexes. Scores are
// creation times in microseconds.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Repository = (*RedisRepository)(nil)

func NewRedisRepository(rdb redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{redis: rdb, prefix: prefix, now: time.Now}
}

func (r *RedisRepository) periodKey(id string) string { return r.prefix + ":period:" + id }
func (r *RedisRepository) eventKey(id string) string { return r.prefix + ":event:" + id }
func (r *RedisRepository) linkKey(id string) string { return r.prefix + ":link:" + id }
func (r *RedisRepository) periodEvents(id string) string { return r.periodKey(id) + ":events" }
func (r *RedisRepository) eventLinks(id string) string { return r.eventKey(id) + ":links" }
func (r *RedisRepository) allKey(kind string) string { return r.prefix + ":" + kind }

func (r *RedisRepository) stamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

type periodRecord struct {
	ID        string `redis:"id"`
	Name      string `redis:"name"`
	StartDate string `redis:"start_date"`
	EndDate   string `redis:"end_date"`
	IsActive  bool   `redis:"is_active"`
	CreatedAt int64  `redis:"created_at"`
}

func (p periodRecord) model() Period {
	return Period{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		IsActive:  p.IsActive,
		CreatedAt: time.UnixMicro(p.CreatedAt).UTC(),
	}
}

type eventRecord struct {
	ID          string `redis:"id"`
	Title       string `redis:"title"`
	Description string `redis:"description"`
	PeriodID    string `redis:"period_id"`
	CreatedAt   int64  `redis:"created_at"`
	UpdatedAt   int64  `redis:"updated_at"`
}

func (e eventRecord) model() Event {
	return Event{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		PeriodID:    e.PeriodID,
		CreatedAt:   time.UnixMicro(e.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMicro(e.UpdatedAt).UTC(),
	}
}

type linkRecord struct {
	ID        string `redis:"id"`
	Title     string `redis:"title"`
	URL       string `redis:"url"`
	EventID   string `redis:"event_id"`
	CreatedAt int64  `redis:"created_at"`
}

func (l linkRecord) model() ResourceLink {
	return ResourceLink{
		ID:        l.ID,
		Title:     l.Title,
		URL:       l.URL,
		EventID:   l.EventID,
		CreatedAt: time.UnixMicro(l.CreatedAt).UTC(),
	}
}

// scanHash loads one hash into dst, reporting ErrNotFound for a missing key.
func scanHash(cmd *redis.MapStringStringCmd, dst interface{}) error {
	fields, err := cmd.Result()
	if err != nil {
		return unavailable(err)
	}
	if len(fields) == 0 {
		return ErrNotFound
	}
	if err := cmd.Scan(dst); err != nil {
		return fmt.Errorf("catalog: decode record: %w", err)
	}
	return nil
}

func (r *RedisRepository) exists(ctx context.Context, key string) (bool, error) {
	n, err := r.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// loadNewestFirst reads the ids in index newest first and loads each hash.
// Ids whose hash vanished concurrently are skipped.
func loadNewestFirst[R any, T any](ctx context.Context, r *RedisRepository, index string, key func(string) string, model func(R) T) ([]T, error) {
	ids, err := r.redis.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []T{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	out := make([]T, 0, len(ids))
	for _, cmd := range cmds {
		var rec R
		if err := scanHash(cmd, &rec); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, model(rec))
	}
	return out, nil
}

/* ==== PERIODS ==== */

func (r *RedisRepository) ListPeriods(ctx context.Context) ([]Period, error) {
	return loadNewestFirst(ctx, r, r.allKey("periods"), r.periodKey, periodRecord.model)
}

func (r *RedisRepository) GetPeriod(ctx context.Context, id string) (Period, error) {
	var rec periodRecord
	if err := scanHash(r.redis.HGetAll(ctx, r.periodKey(id)), &rec); err != nil {
		return Period{}, err
	}
	return rec.model(), nil
}

func (r *RedisRepository) CreatePeriod(ctx context.Context, in PeriodInput) (Period, error) {
	if err := ValidatePeriod(&in); err != nil {
		return Period{}, err
	}
	now := r.stamp()
	rec := periodRecord{
		ID:        uuid.NewString(),
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		IsActive:  in.IsActive,
		CreatedAt: now.UnixMicro(),
	}

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.periodKey(rec.ID), periodFields(rec))
		pipe.ZAdd(ctx, r.allKey("periods"), redis.Z{Score: score(now), Member: rec.ID})
		return nil
	})
	if err != nil {
		return Period{}, unavailable(err)
	}
	return rec.model(), nil
}

func (r *RedisRepository) UpdatePeriod(ctx context.Context, id string, in PeriodInput) (Period, error) {
	if err := ValidatePeriod(&in); err != nil {
		return Period{}, err
	}
	current, err := r.GetPeriod(ctx, id)
	if err != nil {
		return Period{}, err
	}
	rec := periodRecord{
		ID:        id,
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		IsActive:  in.IsActive,
		CreatedAt: current.CreatedAt.UnixMicro(),
	}
	if err := r.redis.HSet(ctx, r.periodKey(id), periodFields(rec)).Err(); err != nil {
		return Period{}, unavailable(err)
	}
	return rec.model(), nil
}

// DeletePeriod removes the period with its events and their links.
func (r *RedisRepository) DeletePeriod(ctx context.Context, id string) error {
	ok, err := r.exists(ctx, r.periodKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	eventIDs, err := r.redis.ZRange(ctx, r.periodEvents(id), 0, -1).Result()
	if err != nil {
		return unavailable(err)
	}
	linksByEvent := make(map[string][]string, len(eventIDs))
	for _, eid := range eventIDs {
		linkIDs, err := r.redis.ZRange(ctx, r.eventLinks(eid), 0, -1).Result()
		if err != nil {
			return unavailable(err)
		}
		linksByEvent[eid] = linkIDs
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for eid, linkIDs := range linksByEvent {
			r.queueEventDelete(ctx, pipe, eid, id, linkIDs)
		}
		pipe.Del(ctx, r.periodKey(id), r.periodEvents(id))
		pipe.ZRem(ctx, r.allKey("periods"), id)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func periodFields(p periodRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":         p.ID,
		"name":       p.Name,
		"start_date": p.StartDate,
		"end_date":   p.EndDate,
		"is_active":  p.IsActive,
		"created_at": p.CreatedAt,
	}
}

/* ==== EVENTS ==== */

func (r *RedisRepository) ListEvents(ctx context.Context) ([]Event, error) {
	return loadNewestFirst(ctx, r, r.allKey("events"), r.eventKey, eventRecord.model)
}

func (r *RedisRepository) EventsByPeriod(ctx context.Context, periodID string) ([]Event, error) {
	ok, err := r.exists(ctx, r.periodKey(periodID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return loadNewestFirst(ctx, r, r.periodEvents(periodID), r.eventKey, eventRecord.model)
}

func (r *RedisRepository) getEvent(ctx context.Context, id string) (eventRecord, error) {
	var rec eventRecord
	err := scanHash(r.redis.HGetAll(ctx, r.eventKey(id)), &rec)
	return rec, err
}

func (r *RedisRepository) GetEvent(ctx context.Context, id string) (EventDetail, error) {
	rec, err := r.getEvent(ctx, id)
	if err != nil {
		return EventDetail{}, err
	}

	detail := EventDetail{Event: rec.model()}
	name, err := r.redis.HGet(ctx, r.periodKey(rec.PeriodID), "name").Result()
	switch {
	case err == nil:
		detail.PeriodName = name
	case !errors.Is(err, redis.Nil):
		return EventDetail{}, unavailable(err)
	}

	links, err := loadNewestFirst(ctx, r, r.eventLinks(id), r.linkKey, linkRecord.model)
	if err != nil {
		return EventDetail{}, err
	}
	detail.Links = links
	return detail, nil
}

func (r *RedisRepository) requireParent(ctx context.Context, key, field string) error {
	ok, err := r.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return invalid(field, "references a missing record")
	}
	return nil
}

func (r *RedisRepository) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	if err := ValidateEvent(&in); err != nil {
		return Event{}, err
	}
	if err := r.requireParent(ctx, r.periodKey(in.PeriodID), "period_id"); err != nil {
		return Event{}, err
	}

	now := r.stamp()
	rec := eventRecord{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		PeriodID:    in.PeriodID,
		CreatedAt:   now.UnixMicro(),
		UpdatedAt:   now.UnixMicro(),
	}
	z := redis.Z{Score: score(now), Member: rec.ID}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.eventKey(rec.ID), eventFields(rec))
		pipe.ZAdd(ctx, r.allKey("events"), z)
		pipe.ZAdd(ctx, r.periodEvents(rec.PeriodID), z)
		return nil
	})
	if err != nil {
		return Event{}, unavailable(err)
	}
	return rec.model(), nil
}

// UpdateEvent replaces the event's fields and bumps UpdatedAt. Moving an
// event to another period moves its index entry.
func (r *RedisRepository) UpdateEvent(ctx context.Context, id string, in EventInput) (Event, error) {
	if err := ValidateEvent(&in); err != nil {
		return Event{}, err
	}
	current, err := r.getEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if in.PeriodID != current.PeriodID {
		if err := r.requireParent(ctx, r.periodKey(in.PeriodID), "period_id"); err != nil {
			return Event{}, err
		}
	}

	rec := current
	rec.Title = in.Title
	rec.Description = in.Description
	rec.PeriodID = in.PeriodID
	rec.UpdatedAt = r.stamp().UnixMicro()

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.eventKey(id), eventFields(rec))
		if rec.PeriodID != current.PeriodID {
			pipe.ZRem(ctx, r.periodEvents(current.PeriodID), id)
			pipe.ZAdd(ctx, r.periodEvents(rec.PeriodID), redis.Z{Score: float64(rec.CreatedAt), Member: id})
		}
		return nil
	})
	if err != nil {
		return Event{}, unavailable(err)
	}
	return rec.model(), nil
}

// DeleteEvent removes the event and its links.
func (r *RedisRepository) DeleteEvent(ctx context.Context, id string) error {
	rec, err := r.getEvent(ctx, id)
	if err != nil {
		return err
	}
	linkIDs, err := r.redis.ZRange(ctx, r.eventLinks(id), 0, -1).Result()
	if err != nil {
		return unavailable(err)
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.queueEventDelete(ctx, pipe, id, rec.PeriodID, linkIDs)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisRepository) queueEventDelete(ctx context.Context, pipe redis.Pipeliner, eventID, periodID string, linkIDs []string) {
	for _, lid := range linkIDs {
		pipe.Del(ctx, r.linkKey(lid))
		pipe.ZRem(ctx, r.allKey("links"), lid)
	}
	pipe.Del(ctx, r.eventKey(eventID), r.eventLinks(eventID))
	pipe.ZRem(ctx, r.allKey("events"), eventID)
	pipe.ZRem(ctx, r.periodEvents(periodID), eventID)
}

func eventFields(e eventRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":          e.ID,
		"title":       e.Title,
		"description": e.Description,
		"period_id":   e.PeriodID,
		"created_at":  e.CreatedAt,
		"updated_at":  e.UpdatedAt,
	}
}

/* ==== LINKS ==== */

func (r *RedisRepository) ListLinks(ctx context.Context) ([]ResourceLink, error) {
	return loadNewestFirst(ctx, r, r.allKey("links"), r.linkKey, linkRecord.model)
}

func (r *RedisRepository) LinksByEvent(ctx context.Context, eventID string) ([]ResourceLink, error) {
	ok, err := r.exists(ctx, r.eventKey(eventID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return loadNewestFirst(ctx, r, r.eventLinks(eventID), r.linkKey, linkRecord.model)
}

func (r *RedisRepository) CreateLink(ctx context.Context, in LinkInput) (ResourceLink, error) {
	if err := ValidateLink(&in); err != nil {
		return ResourceLink{}, err
	}
	if err := r.requireParent(ctx, r.eventKey(in.EventID), "event_id"); err != nil {
		return ResourceLink{}, err
	}

	now := r.stamp()
	rec := linkRecord{
		ID:        uuid.NewString(),
		Title:     in.Title,
		URL:       in.URL,
		EventID:   in.EventID,
		CreatedAt: now.UnixMicro(),
	}
	z := redis.Z{Score: score(now), Member: rec.ID}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.linkKey(rec.ID), linkFields(rec))
		pipe.ZAdd(ctx, r.allKey("links"), z)
		pipe.ZAdd(ctx, r.eventLinks(rec.EventID), z)
		return nil
	})
	if err != nil {
		return ResourceLink{}, unavailable(err)
	}
	return rec.model(), nil
}

func (r *RedisRepository) UpdateLink(ctx context.Context, id string, in LinkInput) (ResourceLink, error) {
	if err := ValidateLink(&in); err != nil {
		return ResourceLink{}, err
	}
	var current linkRecord
	if err := scanHash(r.redis.HGetAll(ctx, r.linkKey(id)), &current); err != nil {
		return ResourceLink{}, err
	}
	if in.EventID != current.EventID {
		if err := r.requireParent(ctx, r.eventKey(in.EventID), "event_id"); err != nil {
			return ResourceLink{}, err
		}
	}

	rec := current
	rec.Title = in.Title
	rec.URL = in.URL
	rec.EventID = in.EventID

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.linkKey(id), linkFields(rec))
		if rec.EventID != current.EventID {
			pipe.ZRem(ctx, r.eventLinks(current.EventID), id)
			pipe.ZAdd(ctx, r.eventLinks(rec.EventID), redis.Z{Score: float64(rec.CreatedAt), Member: id})
		}
		return nil
	})
	if err != nil {
		return ResourceLink{}, unavailable(err)
	}
	return rec.model(), nil
}

func (r *RedisRepository) DeleteLink(ctx context.Context, id string) error {
	var rec linkRecord
	if err := scanHash(r.redis.HGetAll(ctx, r.linkKey(id)), &rec); err != nil {
		return err
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.linkKey(id))
		pipe.ZRem(ctx, r.allKey("links"), id)
		pipe.ZRem(ctx, r.eventLinks(rec.EventID), id)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func linkFields(l linkRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":         l.ID,
		"title":      l.Title,
		"url":        l.URL,
		"event_id":   l.EventID,
		"created_at": l.CreatedAt,
	}
}

/* ==== DASHBOARD ==== */

func (r *RedisRepository) Stats(ctx context.Context) (Stats, error) {
	pipe := r.redis.Pipeline()
	periods := pipe.ZCard(ctx, r.allKey("periods"))
	events := pipe.ZCard(ctx, r.allKey("events"))
	links := pipe.ZCard(ctx, r.allKey("links"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, unavailable(err)
	}
	return Stats{
		TotalPeriods: periods.Val(),
		TotalEvents:  events.Val(),
		TotalLinks:   links.Val(),
	}, nil
}

// RecentActivity merges the newest periods, events and links into one list
// of at most limit entries, newest first.
func (r *RedisRepository) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	sources := []struct {
		kind  ActivityKind
		index string
		key   func(string) string
		field string
	}{
		{ActivityPeriod, r.allKey("periods"), r.periodKey, "name"},
		{ActivityEvent, r.allKey("events"), r.eventKey, "title"},
		{ActivityLink, r.allKey("links"), r.linkKey, "title"},
	}

	type candidate struct {
		src   int
		id    string
		score float64
	}
	var candidates []candidate
	for i, src := range sources {
		zs, err := r.redis.ZRevRangeWithScores(ctx, src.index, 0, int64(limit-1)).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		for _, z := range zs {
			id, _ := z.Member.(string)
			candidates = append(candidates, candidate{src: i, id: id, score: z.Score})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if len(candidates) == 0 {
		return []Activity{}, nil
	}

	pipe := r.redis.Pipeline()
	titles := make([]*redis.StringCmd, len(candidates))
	for i, c := range candidates {
		src := sources[c.src]
		titles[i] = pipe.HGet(ctx, src.key(c.id), src.field)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([]Activity, 0, len(candidates))
	for i, c := range candidates {
		title, err := titles[i].Result()
		if err != nil {
			continue
		}
		out = append(out, Activity{
			Kind:      sources[c.src].kind,
			ID:        c.id,
			Title:     title,
			CreatedAt: time.UnixMicro(int64(c.score)).UTC(),
		})
	}
	return out, nil
}
