// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PuzzlesServed counts puzzles handed out by where they came from: active, retry or themed.
	PuzzlesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puzzletrainer_puzzles_served_total",
		Help: "Puzzles returned by next-puzzle, by source.",
	}, []string{"source"})

	SamplingWraparounds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "puzzletrainer_sampling_wraparounds_total",
		Help: "Random draws that had to wrap to the smallest sampling key.",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puzzletrainer_store_errors_total",
		Help: "Puzzle store and cache failures, by kind.",
	}, []string{"kind"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puzzletrainer_submissions_total",
		Help: "Accepted submissions by outcome.",
	}, []string{"outcome"})

	RejectedSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "puzzletrainer_rejected_submissions_total",
		Help: "Submissions rejected because they did not match the active exercise.",
	})
)
