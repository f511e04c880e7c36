package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixilgnang_conversation_transitions_total",
	Help: "State machine transitions by source and target state",
}, []string{"from", "to"})

var userErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixilgnang_conversation_user_errors_total",
	Help: "Rejected user input by state",
}, []string{"state"})

var submissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pixilgnang_submissions_created_total",
	Help: "Submissions handed off to the moderators",
})

var singlePostsForwarded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pixilgnang_single_posts_forwarded_total",
	Help: "Single messages forwarded to the moderator chat",
})
