// Package mocks provides hand-written test doubles for the collaborators the
// task pipeline depends on. Each mock exposes ...Fn fields to script
// behavior and records its calls for assertions.
package mocks
