package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	query "github.com/ice-blockchain/go-tarantool-query"
	"github.com/ice-blockchain/go-tarantool-query/box"
)

// selectCommand compiles a condition into a select and runs or renders it.
type selectCommand struct {
	*globals
	renderOnly bool

	space  string
	key    []string
	index  string
	op     string
	desc   bool
	limit  uint32
	offset uint32
	mode   string
	master bool
}

func (cmd *selectCommand) register(c *kingpin.CmdClause) {
	c.Arg("space", "Space name or id.").Required().StringVar(&cmd.space)
	c.Arg("key", "Key parts, decoded as YAML values.").StringsVar(&cmd.key)
	c.Flag("index", "Index name or id. The primary index is used when empty.").StringVar(&cmd.index)
	c.Flag("op", "Comparison operator.").Default("=").EnumVar(&cmd.op, "=", "<", "<=", ">=", ">")
	c.Flag("desc", "Iterate in descending order.").BoolVar(&cmd.desc)
	c.Flag("limit", "Maximum number of rows.").Uint32Var(&cmd.limit)
	c.Flag("offset", "Number of rows to skip.").Uint32Var(&cmd.offset)
	c.Flag("master", "Route the select to the master.").BoolVar(&cmd.master)
	if !cmd.renderOnly {
		c.Flag("mode", "Result shape.").Default("all").
			EnumVar(&cmd.mode, "all", "one", "get", "count", "max", "min", "random")
	}
}

// buildCondition turns the command line parts of a select into a Condition.
func buildCondition(op, index string, key []string) (query.Condition, error) {
	operator, err := query.ParseOperator(op)
	if err != nil {
		return query.Condition{}, err
	}
	values := parseArgs(key)
	if index == "" {
		if len(values) == 0 {
			return query.Empty(), nil
		}
		return query.Range(operator, values...), nil
	}

	ref := query.IndexName(index)
	if id, ok := parseArg(index).(int); ok && id >= 0 {
		ref = query.IndexID(uint32(id))
	}
	return query.IndexedRange(operator, ref, values...), nil
}

func (cmd *selectCommand) run(*kingpin.ParseContext) error {
	cond, err := buildCondition(cmd.op, cmd.index, cmd.key)
	if err != nil {
		return err
	}

	s, err := cmd.open()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := cmd.deadline()
	defer cancel()

	sel, err := s.conn.Select(ctx, parseArg(cmd.space), cond, query.SelectOpts{
		Desc:   cmd.desc,
		Offset: cmd.offset,
		Limit:  cmd.limit,
	})
	if err != nil {
		return err
	}
	if cmd.master {
		sel.RouteAs = query.RW
	}

	if cmd.renderOnly {
		_, err := fmt.Fprintln(os.Stdout, query.Render(sel, query.RenderOpts{
			MaxFieldLength: s.cfg.Query.DebugStringMaxFieldLength,
			Names:          s.conn.Resolver().Names(ctx),
		}))
		return err
	}

	c := s.conn.NewCommand(sel)
	s.logger.Debug("running select", "statement", c.String(), "mode", cmd.mode)
	var result interface{}
	switch cmd.mode {
	case "all":
		result, err = c.QueryAll(ctx)
	case "count":
		result, err = c.Count(ctx)
	default:
		var row interface{}
		var found bool
		switch cmd.mode {
		case "one":
			row, found, err = c.QueryOne(ctx)
		case "get":
			row, found, err = c.QueryGet(ctx)
		case "max":
			row, found, err = c.Max(ctx)
		case "min":
			row, found, err = c.Min(ctx)
		case "random":
			row, found, err = c.Random(ctx)
		}
		if found {
			result = row
		}
	}
	if err != nil {
		return err
	}
	return printResult(os.Stdout, result)
}

// callCommand calls a stored function, or evaluates an expression with
// --eval.
type callCommand struct {
	*globals

	function string
	args     []string
	eval     bool
	master   bool
}

func (cmd *callCommand) register(c *kingpin.CmdClause) {
	c.Arg("function", "Function name, or a Lua expression with --eval.").Required().StringVar(&cmd.function)
	c.Arg("args", "Arguments, decoded as YAML values.").StringsVar(&cmd.args)
	c.Flag("eval", "Evaluate the first argument as a Lua expression.").BoolVar(&cmd.eval)
	c.Flag("master", "Route the request to the master.").BoolVar(&cmd.master)
}

func (cmd *callCommand) request() query.Request {
	mode := query.Auto
	if cmd.master {
		mode = query.RW
	}
	if cmd.eval {
		return &query.Eval{Expr: cmd.function, Args: parseArgs(cmd.args), RouteAs: mode}
	}
	return &query.Call{Function: cmd.function, Args: parseArgs(cmd.args), RouteAs: mode}
}

func (cmd *callCommand) run(*kingpin.ParseContext) error {
	s, err := cmd.open()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := cmd.deadline()
	defer cancel()

	c := s.conn.NewCommand(cmd.request())
	s.logger.Debug("running request", "statement", c.String())
	rows, err := c.QueryAll(ctx)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, rows)
}

type infoCommand struct {
	*globals
}

func (cmd *infoCommand) run(*kingpin.ParseContext) error {
	s, err := cmd.open()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := cmd.deadline()
	defer cancel()

	info, err := box.New(s.conn, s.conn.Resolver()).Info(ctx)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, info)
}

func printResult(w io.Writer, result interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	return enc.Close()
}
