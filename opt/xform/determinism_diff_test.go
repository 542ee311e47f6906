package xform_test

import (
	"context"
	"testing"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kamkernel/cascadeopt/opt/demoops"
	"github.com/kamkernel/cascadeopt/opt/memo"
	"github.com/kamkernel/cascadeopt/opt/props"
	"github.com/kamkernel/cascadeopt/opt/xform"
)

// requireEqualPlanText compares two rendered plan descriptions as a
// unified diff, which gives a far more legible failure than a plain
// string-equality mismatch once a plan tree grows past a couple of
// operators.
func requireEqualPlanText(t *testing.T, want, got, msg string) {
	t.Helper()
	if want == got {
		return
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "first run",
		ToFile:   "second run",
		Context:  3,
	}
	text, _ := difflib.GetUnifiedDiffString(diff)
	t.Fatalf("%s:\n%s", msg, text)
}

// TestDeterminismDiff repeats the two-run determinism check, this time
// comparing the runs with requireEqualPlanText so a regression here
// renders as a diff instead of testify's "expected X, got Y" strings,
// which get unreadable once the tree has more than one or two operators.
func TestDeterminismDiff(t *testing.T) {
	build := func() (*xform.OperatorTree, error) {
		catalog := &demoops.Catalog{RowCounts: map[string]float64{"big": 5000, "small": 50}}
		rules := demoops.DefaultRules(catalog, nil, nil)
		mem := memo.New()
		optimizer := xform.NewOptimizer(mem, rules, xform.Config{})
		return optimizer.Optimize(context.Background(), join("big.x=small.y", scan("big"), scan("small")), props.MinRequired)
	}

	t1, err1 := build()
	if err1 != nil {
		t.Fatalf("first run: %v", err1)
	}
	t2, err2 := build()
	if err2 != nil {
		t.Fatalf("second run: %v", err2)
	}

	requireEqualPlanText(t, describe(t1), describe(t2), "two optimizer runs over identical input diverged")
}
