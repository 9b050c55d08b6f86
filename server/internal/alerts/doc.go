// Package alerts evaluates notification rules against ingested readings and
// delivers webhook notifications to Teams, Slack, or generic HTTP targets.
//
// Rules are independent of a reading's own alert flag: they decide who gets
// told, and how often, not whether a reading is flagged.
package alerts
