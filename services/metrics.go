package services

import "github.com/prometheus/client_golang/prometheus"

var (
	migrationStepsCounter     prometheus.Counter
	migrationRollbacksCounter prometheus.Counter
	commentVersionsCounter    prometheus.Counter
	votesCastCounter          prometheus.Counter
	reputationInitsCounter    prometheus.Counter
)

func init() {
	migrationStepsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feature_migration_steps_total",
		Help: "Total number of successfully executed feature migration steps.",
	})
	migrationRollbacksCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feature_migration_rollbacks_total",
		Help: "Total number of migration steps that failed and self-rolled-back.",
	})
	commentVersionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_comment_versions_written_total",
		Help: "Total number of review comment version snapshots written.",
	})
	votesCastCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paper_votes_cast_total",
		Help: "Total number of paper votes cast.",
	})
	reputationInitsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reputation_initializations_total",
		Help: "Total number of completed reputation initializations from external works.",
	})
	prometheus.MustRegister(migrationStepsCounter, migrationRollbacksCounter, commentVersionsCounter, votesCastCounter, reputationInitsCounter)
}
