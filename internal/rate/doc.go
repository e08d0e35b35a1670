// Package rate throttles platform login attempts with Redis fixed-window
// counters: INCR plus a conditional EXPIRE on the first hit. Key prefixes:
//
//   - pt:e: — per-email
//   - pt:i: — per-IP
//
// Policy (thresholds, whether the throttle is on at all) lives in the
// engine config; this package only counts.
package rate
