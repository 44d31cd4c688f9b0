// Package reward implements the Reward Estimator component.
//
// The Reward Estimator:
//   - Runs once at startup, then on a fixed interval (default 60s)
//   - Reads lastUpdated from the persisted state store
//   - Derives a countdown string and a potential points estimate
//   - Merges the derived fields back into the store
//
// The computation itself is a pure function of (now, lastUpdated) plus an
// injected random source, so tests can pin the clock and the bonus draw.
package reward
