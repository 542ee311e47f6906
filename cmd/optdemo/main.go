// Command optdemo drives the search framework against the small
// opt/demoops catalog, so the memo/rule/optimize machinery can be
// exercised without a real parser or catalog attached. It takes a
// fixed demo query shape (scan two tables, join them, optionally
// filter and sort) and prints the winning physical plan.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/demoops"
	"github.com/kamkernel/cascadeopt/opt/memo"
	"github.com/kamkernel/cascadeopt/opt/props"
	"github.com/kamkernel/cascadeopt/opt/xform"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		leftTable, rightTable string
		joinCondition         string
		predicate             string
		orderByColumn         string
		verbose               bool
		alternate             int
	)

	cmd := &cobra.Command{
		Use:   "optdemo",
		Short: "Optimize a fixed demo join query and print the winning physical plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return errors.Wrap(err, "optdemo: building logger")
				}
				logger = l
			}
			return runExplain(cmd.OutOrStdout(), explainArgs{
				leftTable:     leftTable,
				rightTable:    rightTable,
				joinCondition: joinCondition,
				predicate:     predicate,
				orderByColumn: orderByColumn,
				logger:        logger,
				alternate:     alternate,
			})
		},
	}

	registerFlags(cmd.Flags(), &leftTable, &rightTable, &joinCondition, &predicate, &orderByColumn, &verbose, &alternate)
	return cmd
}

func registerFlags(flags *pflag.FlagSet, leftTable, rightTable, joinCondition, predicate, orderByColumn *string, verbose *bool, alternate *int) {
	flags.StringVar(leftTable, "left", "orders", "left table name")
	flags.StringVar(rightTable, "right", "customers", "right table name")
	flags.StringVar(joinCondition, "join-on", "orders.cust_id=customers.id", "join condition label")
	flags.StringVar(predicate, "filter", "", "optional filter predicate applied to the join's left input")
	flags.StringVar(orderByColumn, "order-by", "", "optional column to sort the final result by")
	flags.BoolVarP(verbose, "verbose", "v", false, "trace rule firings and new best plans to stderr")
	flags.IntVar(alternate, "alternate", 0, "print the Nth-cheapest plan (0-indexed) instead of the best")
}

type explainArgs struct {
	leftTable, rightTable string
	joinCondition         string
	predicate             string
	orderByColumn         string
	logger                *zap.Logger
	alternate             int
}

// demoNode is the minimal memo.InputNode the fixed demo query shape
// builds, standing in for a real parser/binder's output tree.
type demoNode struct {
	op       opt.Operator
	children []memo.InputNode
}

func (n *demoNode) Op() opt.Operator         { return n.op }
func (n *demoNode) Children() []memo.InputNode { return n.children }

func buildDemoQuery(a explainArgs) memo.InputNode {
	left := memo.InputNode(&demoNode{op: &demoops.Scan{Table: a.leftTable}})
	if a.predicate != "" {
		left = &demoNode{op: &demoops.Select{Predicate: a.predicate, Selectivity: 0.3}, children: []memo.InputNode{left}}
	}
	right := memo.InputNode(&demoNode{op: &demoops.Scan{Table: a.rightTable}})

	join := memo.InputNode(&demoNode{
		op:       &demoops.InnerJoin{Condition: a.joinCondition, Selectivity: 0.1},
		children: []memo.InputNode{left, right},
	})

	if a.orderByColumn == "" {
		return join
	}
	return &demoNode{
		op:       &demoops.Sort{Ordering: props.Ordering{{Col: a.orderByColumn}}},
		children: []memo.InputNode{join},
	}
}

func runExplain(w io.Writer, a explainArgs) error {
	catalog := &demoops.Catalog{
		RowCounts: map[string]float64{a.leftTable: 50000, a.rightTable: 2000},
		IndexOrders: map[string]props.Ordering{
			a.rightTable: {{Col: "id"}},
		},
	}
	mergeJoinColumns := map[string]props.Ordering{
		a.joinCondition: {{Col: "id"}},
	}

	var required props.Set
	if a.orderByColumn != "" {
		required = props.Set{Ordering: props.OrderingChoice{Columns: props.Ordering{{Col: a.orderByColumn}}}}
	}

	rules := demoops.DefaultRules(catalog, mergeJoinColumns, required.Ordering.Columns)
	mem := memo.New()
	cfg := xform.Config{Logger: a.logger, Alternate: a.alternate}
	optimizer := xform.NewOptimizer(mem, rules, cfg)

	ctx := context.Background()
	query := buildDemoQuery(a)

	var tree *xform.OperatorTree
	var err error
	if cfg.Alternate > 0 {
		rootGroup, _, recErr := mem.Record(query)
		if recErr != nil {
			return recErr
		}
		if _, optErr := optimizer.Optimize(ctx, query, required); optErr != nil {
			return optErr
		}
		tree, err = optimizer.OptimizeNth(ctx, rootGroup, required, cfg.Alternate)
	} else {
		tree, err = optimizer.Optimize(ctx, query, required)
	}
	if err != nil {
		if errors.Is(err, opt.ErrNoPlan) {
			fmt.Fprintln(w, "no physical plan satisfies the requested properties")
			return nil
		}
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"depth", "operator"})
	table.SetAutoWrapText(false)
	renderTree(table, tree, 0)
	table.Render()
	return nil
}

func renderTree(table *tablewriter.Table, node *xform.OperatorTree, depth int) {
	table.Append([]string{fmt.Sprintf("%d", depth), node.Op.Kind().String()})
	for _, child := range node.Children {
		renderTree(table, child, depth+1)
	}
}
