package harness

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/bip/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Fired interactions give the most useful context.
	fmt.Fprintf(&buf, "\nFired:\n")
	for _, ev := range e.Trace {
		if ev.Kind == string(ir.StatusInteractionFired) {
			fmt.Fprintf(&buf, "  [round %d] %s\n", ev.Round, ev.Interaction)
		}
	}
	return buf.String()
}

// assertFiredCount checks that an interaction fired exactly Count times.
func assertFiredCount(result *Result, a Assertion) error {
	n := 0
	for _, key := range result.Fired() {
		if key == a.Interaction {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertFiredCount,
		Expected: fmt.Sprintf("%s fired %d time(s)", a.Interaction, a.Count),
		Actual:   fmt.Sprintf("fired %d time(s)", n),
		Trace:    result.Trace,
	}
}

// assertNeverFired checks that an interaction, or any interaction involving
// a component, never fired.
func assertNeverFired(result *Result, a Assertion) error {
	for _, key := range result.Fired() {
		switch {
		case a.Interaction != "" && key == a.Interaction:
		case a.Component != "" && involves(key, a.Component):
		default:
			continue
		}
		target := a.Interaction
		if target == "" {
			target = "component " + a.Component
		}
		return &AssertionError{
			Type:     AssertNeverFired,
			Expected: fmt.Sprintf("%s never fired", target),
			Actual:   fmt.Sprintf("%s fired", key),
			Trace:    result.Trace,
		}
	}
	return nil
}

// involves reports whether the interaction key has a port of component.
func involves(key, component string) bool {
	for _, port := range strings.Split(key, ",") {
		if i := strings.LastIndex(port, "."); i > 0 && port[:i] == component {
			return true
		}
	}
	return false
}

// assertFireOrder checks that the interactions fired in the given relative
// order. Other firings may come between them.
func assertFireOrder(result *Result, a Assertion) error {
	fired := result.Fired()
	next := 0
	for _, key := range fired {
		if next < len(a.Interactions) && key == a.Interactions[next] {
			next++
		}
	}
	if next == len(a.Interactions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFireOrder,
		Expected: fmt.Sprintf("fired in order %v", a.Interactions),
		Actual:   fmt.Sprintf("%v (missing from %s on)", fired, a.Interactions[next]),
		Trace:    result.Trace,
	}
}

// assertFinalState checks a component's final state and local values
// (subset match).
func assertFinalState(result *Result, a Assertion) error {
	snap, ok := result.State[a.Component]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("component %s", a.Component),
			Actual:   "no such component",
			Trace:    result.Trace,
		}
	}
	if a.State != "" && snap.State != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s in state %s", a.Component, a.State),
			Actual:   fmt.Sprintf("state %s", snap.State),
			Trace:    result.Trace,
		}
	}
	if !matchValues(snap.Values, a.Values) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s values %v", a.Component, a.Values),
			Actual:   fmt.Sprintf("values %v", snap.Values),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventCount counts status events of a kind, optionally narrowed to
// an error code.
func assertEventCount(result *Result, a Assertion) error {
	n := 0
	for _, ev := range result.Trace {
		if ev.Kind == a.Kind && (a.Code == "" || ev.Code == a.Code) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	what := a.Kind
	if a.Code != "" {
		what += " " + a.Code
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s event(s)", a.Count, what),
		Actual:   fmt.Sprintf("%d", n),
		Trace:    result.Trace,
	}
}

// matchValues checks if actual contains all expected values (subset match).
// Extra keys in actual are ignored.
func matchValues(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares a component value with a value decoded from YAML.
// Integers compare across int widths; everything else uses DeepEqual.
func valuesEqual(actual, expected any) bool {
	if a, ok := toInt64(actual); ok {
		if e, ok := toInt64(expected); ok {
			return a == e
		}
	}
	if as, ok := actual.([]any); ok {
		es, ok := expected.([]any)
		return ok && slices.EqualFunc(as, es, valuesEqual)
	}
	return reflect.DeepEqual(actual, expected)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFiredCount:
			err = assertFiredCount(result, assertion)
		case AssertNeverFired:
			err = assertNeverFired(result, assertion)
		case AssertFireOrder:
			err = assertFireOrder(result, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
