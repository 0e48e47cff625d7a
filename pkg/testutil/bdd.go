package testutil

import "testing"

// Scenario steps run as nested subtests named after their keyword, so a
// failure reads as the sentence that broke: "Given x/When y/Then z".

func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}

// And continues the previous step at the same nesting level.
func And(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "And", desc, fn)
}

// Fixture builds state shared by the steps that follow. Subtests cannot hand
// values back, so the setup runs inline and is only logged as a step.
func Fixture[T any](t *testing.T, desc string, build func(t *testing.T) T) T {
	t.Helper()
	t.Logf("Given %s", desc)
	return build(t)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(keyword+" "+desc, fn)
}
