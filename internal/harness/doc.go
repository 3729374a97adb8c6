// Package harness runs query scenarios against the reference runtime.
//
// A scenario names a catalog, one query plan and the input records pushed
// through it. The harness builds the query, processes the records in order
// and checks the resulting trace of sink writes, dead letters and grouped
// changes.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: high_value
//	description: "Rows over 100 reach OUT with the projected columns"
//	catalog: catalog.cue
//	query:
//	  name: HIGH_VALUE
//	  from: TEST2
//	  where: {op: ">", args: [{col: COL0}, {lit: 100}]}
//	  select:
//	    - expr: {col: COL0}
//	  into:
//	    topic: OUT
//	on_error: skip
//	input:
//	  - topic: test2
//	    key: a
//	    value: {COL0: 200}
//	assertions:
//	  - type: sink_contains
//	    key: a
//	    value: {COL0: 200}
//	  - type: stats
//	    stats: {processed: 1, written: 1}
//
// # Assertion Types
//
//   - sink_contains: a record on the sink (or Topic) matches key and value
//   - sink_count: the sink (or Topic) received exactly Count records
//   - sink_order: record keys on the sink (or Topic) are exactly Keys
//   - change_contains: a grouped change matches op, key and value
//   - change_count: exactly Count grouped changes, optionally of one op
//   - stats: runtime counters equal the given values
//
// A scenario may instead set expect_error to a plan error code such as
// TYPE_COERCION; the run must then stop with that code.
//
// # Deterministic Testing
//
// The harness uses:
//   - Fixed query IDs (query-1)
//   - Deterministic record clock starting at ClockStart
//   - In-memory SQLite topic store (isolated per run)
//
// This ensures identical traces across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/high_value.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
