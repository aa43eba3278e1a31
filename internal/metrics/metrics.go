package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodshare_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodshare_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_users_registered_total",
			Help: "Total users registered",
		},
	)

	MoodCheckins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodshare_mood_checkins_total",
			Help: "Total mood check-ins",
		},
		[]string{"mood"},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodshare_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"room_kind"}, // "mood", "general" or "direct"
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_messages_deleted_total",
			Help: "Total messages soft-deleted",
		},
	)

	ContactsAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_contacts_added_total",
			Help: "Total contacts saved to rosters",
		},
	)

	ReportsFiled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_reports_filed_total",
			Help: "Total moderation reports filed",
		},
	)

	ReceiptsMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_receipts_marked_total",
			Help: "Total read receipts recorded",
		},
	)

	// Fan-out metrics
	FanoutHintsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_fanout_hints_published_total",
			Help: "Total change hints published",
		},
	)

	FanoutHintsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodshare_fanout_hints_dropped_total",
			Help: "Total change hints dropped on full subscriber buffers",
		},
	)

	PresenceMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moodshare_presence_members",
			Help: "Current members per presence channel",
		},
		[]string{"channel"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodshare_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodshare_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
