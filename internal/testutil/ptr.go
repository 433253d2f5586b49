// Package testutil holds helpers shared by package tests.
package testutil

// Ptr returns a pointer to v. Handy for optional fields such as
// plugin.PipeMessage.Payload in table-driven tests.
func Ptr[T any](v T) *T { return &v }
