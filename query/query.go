// Package query is the front door: it compiles chain expressions and runs
// them against a session.
package query

import (
	"context"

	"github.com/chainq-dev/chainq/config"
	"github.com/chainq-dev/chainq/query/compiler"
	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/runtime"
)

// Option configures one Compile or Run call.
type Option func(*options)

type options struct {
	params  map[string]interface{}
	cfg     *config.Config
	session *runtime.Session
}

// WithParams supplies values for ^name pins and lowercase chain roots.
func WithParams(params map[string]interface{}) Option {
	return func(o *options) { o.params = params }
}

// WithConfig overrides the process-wide configuration for this call.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithSession runs the query on an existing session instead of opening one.
func WithSession(s *runtime.Session) Option {
	return func(o *options) { o.session = s }
}

// Compile parses and compiles a chain expression into a query plan without
// executing it.
func Compile(source string, opts ...Option) (*plan.Plan, error) {
	o := collect(opts)
	return compiler.Compile(source, &compiler.Options{Params: o.params})
}

// Run compiles a chain expression and, when it ends in a terminal
// operation, executes it. A chain without a terminal returns the plan
// itself as a handle for later composition.
func Run(ctx context.Context, source string, opts ...Option) (interface{}, error) {
	o := collect(opts)
	p, err := compiler.Compile(source, &compiler.Options{Params: o.params})
	if err != nil {
		return nil, err
	}
	if !p.Finished() {
		return p, nil
	}

	session := o.session
	if session == nil {
		session, err = runtime.OpenSession(o.cfg, nil)
		if err != nil {
			return nil, err
		}
		defer session.Close()
	}
	return session.Execute(ctx, p)
}

func collect(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
