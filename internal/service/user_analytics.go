package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teachhub/telemetry/internal/model"
	"github.com/teachhub/telemetry/internal/pkg/logger"
	"github.com/teachhub/telemetry/internal/pkg/metrics"
)

const (
	eventKeyPrefix      = "event:"
	eventTimeline       = "events:timeline"
	eventUserPrefix     = "events:user:"
	eventCategoryPrefix = "events:category:"
	dauPrefix           = "dau:"
	dateLayout          = "2006-01-02"
	journeyFetchSize    = 1000
	topEventsN          = 10
	maxDAUDays          = 365
)

type UserAnalyticsOptions struct {
	BufferSize     int
	Retention      time.Duration
	DAURetention   time.Duration
	StoreTimeout   time.Duration
	WriteQueueSize int
	Now            func() time.Time
}

func (o *UserAnalyticsOptions) applyDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 5000
	}
	if o.Retention <= 0 {
		o.Retention = 90 * 24 * time.Hour
	}
	if o.DAURetention <= 0 {
		o.DAURetention = 30 * 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = model.Now
	}
}

// UserAnalyticsTracker records behavior events and reconstructs engagement,
// daily activity and per-user journeys from them.
type UserAnalyticsTracker struct {
	opts   UserAnalyticsOptions
	buffer *RingBuffer[*model.BehaviorEvent]
	store  *durable
	writer *asyncWriter
	log    *slog.Logger
}

func NewUserAnalyticsTracker(store TelemetryStore, opts UserAnalyticsOptions) *UserAnalyticsTracker {
	opts.applyDefaults()
	log := logger.Component("user_analytics")
	return &UserAnalyticsTracker{
		opts:   opts,
		buffer: NewRingBuffer[*model.BehaviorEvent](opts.BufferSize),
		store:  &durable{tracker: "events", store: store, timeout: opts.StoreTimeout, log: log},
		writer: newAsyncWriter("events", opts.WriteQueueSize, log),
		log:    log,
	}
}

func (a *UserAnalyticsTracker) Name() string { return "events" }

func (a *UserAnalyticsTracker) TrackEvent(ctx context.Context, partial model.BehaviorEvent) *model.BehaviorEvent {
	ev := partial
	ev.ID = uuid.NewString()
	ev.Timestamp = a.opts.Now()
	if ev.UserID == "" {
		ev.UserID = model.AnonymousUser
	}
	if ev.SessionID == "" {
		ev.SessionID = model.UnknownSession
	}
	if ev.Event == "" {
		ev.Event = "unknown"
	}
	if !ev.Category.Valid() {
		ev.Category = model.CategoryNavigation
	}
	if !ev.Platform.Valid() {
		ev.Platform = model.PlatformWeb
	}
	ev.Properties = RedactMetadata(ev.Properties)
	ev.Metadata = RedactMetadata(ev.Metadata)

	a.buffer.Push(&ev)
	metrics.RecordsTracked.WithLabelValues("events").Inc()
	metrics.BufferSize.WithLabelValues("events").Set(float64(a.buffer.Len()))

	stored := ev
	a.writer.Enqueue(func(ctx context.Context) {
		a.persist(ctx, &stored)
	})
	out := ev
	out.Metadata = maps.Clone(ev.Metadata)
	out.Properties = maps.Clone(ev.Properties)
	return &out
}

func (a *UserAnalyticsTracker) persist(ctx context.Context, ev *model.BehaviorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		a.log.Warn("failed to encode event", "id", ev.ID, "error", err)
		return
	}
	userIndex := eventUserPrefix + ev.UserID
	a.store.persist(ctx, eventKeyPrefix+ev.ID, ev.ID, string(payload), a.opts.Retention, scoreOf(ev.Timestamp),
		eventTimeline, userIndex, eventCategoryPrefix+string(ev.Category))
	_ = a.store.call(ctx, "expire", func(ctx context.Context, s TelemetryStore) error {
		return s.Expire(ctx, userIndex, a.opts.Retention)
	})
	// Active users keep their index alive, so it is pruned here rather
	// than left to the key TTL.
	_, _ = a.store.prune(ctx, userIndex, ev.Timestamp.Add(-a.opts.Retention))

	if ev.UserID == model.AnonymousUser {
		return
	}
	dauKey := dauPrefix + ev.Timestamp.UTC().Format(dateLayout)
	_ = a.store.call(ctx, "sadd", func(ctx context.Context, s TelemetryStore) error {
		if err := s.SetAdd(ctx, dauKey, ev.UserID); err != nil {
			return err
		}
		return s.Expire(ctx, dauKey, a.opts.DAURetention)
	})
}

func (a *UserAnalyticsTracker) windowEvents(ctx context.Context, w model.Window) []*model.BehaviorEvent {
	now := a.opts.Now()
	events, err := windowRecords[model.BehaviorEvent](ctx, a.store, eventTimeline, eventKeyPrefix, windowStart(now, w), now)
	if err == nil {
		return events
	}
	a.store.fallback("window", err)
	return a.buffer.Filter(func(ev *model.BehaviorEvent) bool {
		return inWindow(ev.Timestamp, now, w)
	})
}

func (a *UserAnalyticsTracker) GetAnalyticsSummary(ctx context.Context, w model.Window) model.AnalyticsSummary {
	w = w.Normalize()
	now := a.opts.Now()
	events := a.windowEvents(ctx, w)

	summary := model.AnalyticsSummary{
		TotalEvents:       len(events),
		CategoryBreakdown: make(map[string]int),
		PlatformBreakdown: make(map[string]int),
	}

	type span struct {
		first, last time.Time
		count       int
	}
	users := make(map[string]struct{})
	sessions := make(map[string]*span)
	names := newOrderedCounter()
	times := make([]time.Time, 0, len(events))

	for _, ev := range events {
		users[ev.UserID] = struct{}{}
		names.Add(ev.Event)
		summary.CategoryBreakdown[string(ev.Category)]++
		summary.PlatformBreakdown[string(ev.Platform)]++
		times = append(times, ev.Timestamp)

		key := ev.UserID + "\x00" + ev.SessionID
		s, ok := sessions[key]
		if !ok {
			sessions[key] = &span{first: ev.Timestamp, last: ev.Timestamp, count: 1}
			continue
		}
		if ev.Timestamp.Before(s.first) {
			s.first = ev.Timestamp
		}
		if ev.Timestamp.After(s.last) {
			s.last = ev.Timestamp
		}
		s.count++
	}

	summary.UniqueUsers = len(users)
	summary.TopEvents = names.Top(topEventsN)
	summary.Trends = trendBuckets(times, now, w)

	if len(sessions) > 0 {
		var total time.Duration
		bounced := 0
		for _, s := range sessions {
			total += s.last.Sub(s.first)
			if s.count == 1 {
				bounced++
			}
		}
		summary.UserEngagement.AverageSessionDuration = float64(total.Milliseconds()) / float64(len(sessions))
		summary.UserEngagement.BounceRate = float64(bounced) / float64(len(sessions))
	}
	if summary.UniqueUsers > 0 {
		summary.UserEngagement.AverageEventsPerUser = float64(summary.TotalEvents) / float64(summary.UniqueUsers)
	}
	return summary
}

// GetDailyActiveUsers returns one entry per calendar day (UTC) for the
// trailing days, oldest first.
func (a *UserAnalyticsTracker) GetDailyActiveUsers(ctx context.Context, days int) []model.DailyActiveUsers {
	if days <= 0 {
		return []model.DailyActiveUsers{}
	}
	days = min(days, maxDAUDays)
	today := a.opts.Now().UTC()
	dates := make([]string, days)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, -(days - 1 - i)).Format(dateLayout)
	}

	out := make([]model.DailyActiveUsers, days)
	err := a.store.call(ctx, "scard", func(ctx context.Context, s TelemetryStore) error {
		for i, date := range dates {
			n, err := s.SetCardinality(ctx, dauPrefix+date)
			if err != nil {
				return fmt.Errorf("scard %s: %w", date, err)
			}
			out[i] = model.DailyActiveUsers{Date: date, Count: n}
		}
		return nil
	})
	if err == nil {
		return out
	}

	a.store.fallback("dau", err)
	perDay := make(map[string]map[string]struct{}, days)
	for _, ev := range a.buffer.Snapshot() {
		if ev.UserID == model.AnonymousUser {
			continue
		}
		date := ev.Timestamp.UTC().Format(dateLayout)
		if perDay[date] == nil {
			perDay[date] = make(map[string]struct{})
		}
		perDay[date][ev.UserID] = struct{}{}
	}
	for i, date := range dates {
		out[i] = model.DailyActiveUsers{Date: date, Count: int64(len(perDay[date]))}
	}
	return out
}

// GetUserJourney reconstructs what a user did, optionally within one
// session. Funnel steps are counted by presence, not by order.
func (a *UserAnalyticsTracker) GetUserJourney(ctx context.Context, userID, sessionID string) model.UserJourney {
	var events []*model.BehaviorEvent
	var ids []string
	err := a.store.call(ctx, "zrevrange", func(ctx context.Context, s TelemetryStore) error {
		var err error
		ids, err = s.SortedRangeByRank(ctx, eventUserPrefix+userID, 0, journeyFetchSize-1)
		return err
	})
	if err == nil {
		events, err = resolve[model.BehaviorEvent](ctx, a.store, eventKeyPrefix, ids)
	}
	if err != nil {
		a.store.fallback("journey", err)
		events = a.buffer.Filter(func(ev *model.BehaviorEvent) bool {
			return ev.UserID == userID
		})
	}

	journey := model.UserJourney{
		Events:           make([]*model.BehaviorEvent, 0, len(events)),
		Pages:            []string{},
		Actions:          []string{},
		ConversionFunnel: make(map[string]int, len(model.FunnelSteps)),
	}
	for _, ev := range events {
		if sessionID != "" && ev.SessionID != sessionID {
			continue
		}
		journey.Events = append(journey.Events, ev)
	}
	sort.SliceStable(journey.Events, func(i, j int) bool {
		return journey.Events[i].Timestamp.Before(journey.Events[j].Timestamp)
	})
	if n := len(journey.Events); n > 1 {
		journey.Duration = journey.Events[n-1].Timestamp.Sub(journey.Events[0].Timestamp).Milliseconds()
	}

	for _, step := range model.FunnelSteps {
		journey.ConversionFunnel[step] = 0
	}
	seenPages := make(map[string]bool)
	seenActions := make(map[string]bool)
	for _, ev := range journey.Events {
		if page, ok := ev.Properties["page"].(string); ok && page != "" && !seenPages[page] {
			seenPages[page] = true
			journey.Pages = append(journey.Pages, page)
		}
		if !seenActions[ev.Event] {
			seenActions[ev.Event] = true
			journey.Actions = append(journey.Actions, ev.Event)
		}
		if _, ok := journey.ConversionFunnel[ev.Event]; ok {
			journey.ConversionFunnel[ev.Event]++
		}
	}
	return journey
}

func (a *UserAnalyticsTracker) Cleanup(ctx context.Context) {
	cutoff := a.opts.Now().Add(-a.opts.Retention)
	collections := []string{eventTimeline}
	for _, c := range model.EventCategories {
		collections = append(collections, eventCategoryPrefix+string(c))
	}
	for _, collection := range collections {
		removed, err := a.store.prune(ctx, collection, cutoff)
		if err != nil {
			break
		}
		if collection == eventTimeline {
			metrics.RetentionRemoved.WithLabelValues("events").Add(float64(removed))
		}
	}
	dropped := a.buffer.Retain(func(ev *model.BehaviorEvent) bool {
		return !ev.Timestamp.Before(cutoff)
	})
	metrics.BufferSize.WithLabelValues("events").Set(float64(a.buffer.Len()))
	a.log.Info("event cleanup finished", "cutoff", cutoff, "buffer_dropped", dropped)
}

func (a *UserAnalyticsTracker) BufferLen() int {
	return a.buffer.Len()
}

func (a *UserAnalyticsTracker) Flush() {
	a.writer.Flush()
}

func (a *UserAnalyticsTracker) Close() {
	a.writer.Close()
}
