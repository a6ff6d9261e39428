// Package gemini implements generation.Provider on top of Google's Gemini API
// through the google.golang.org/genai client.
//
// The adapter is deliberately thin. It turns a prompt and an optional inline
// image into a single-turn request, concatenates the text parts of the first
// candidate, and classifies failures as transient (rate limits, 5xx, timeouts,
// transport errors) or fatal (other 4xx, safety blocks, empty output) so the
// pipeline can decide whether to retry.
package gemini
