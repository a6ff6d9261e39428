// Package events fans task progress out to subscribers.
//
// The Hub keeps one topic per task. Every published event gets the next
// per-task sequence number and is delivered to each live subscriber in
// publish order. A subscriber that joins late first receives the most recent
// event as a snapshot, and once a terminal event is published the topic is
// sealed: subscriber channels are closed and later subscribers get only the
// terminal snapshot.
package events
