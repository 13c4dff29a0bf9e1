// Package splittest assigns users to split-test variants.
//
// Assignments are read from a YAML file:
//
//	tests:
//	  pdf-caching-mode:
//	    variants:
//	      - name: enabled
//	        rollout_percent: 100
//	  pdf-caching-min-chunk-size:
//	    variants:
//	      - name: "500000"
//	        rollout_percent: 50
//
// A user lands in the first variant whose cumulative rollout covers their
// percentile; everyone else gets "default". Percentiles are stable per
// analytics id, test name and phase. A query parameter named after the test
// overrides the assignment.
package splittest
