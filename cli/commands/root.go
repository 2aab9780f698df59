// Package commands implements the chainq command line interface.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chainq-dev/chainq/config"
	"github.com/chainq-dev/chainq/internal/debug"
	"github.com/chainq-dev/chainq/schema"
)

var rootCmd = &cobra.Command{
	Use:   "chainq",
	Short: "Compile and run chain query expressions",
	Long: `chainq compiles chain-style query expressions into backend-agnostic
query plans and executes them against a configured database.

Expressions read like:

    User.where(age > 20 and name == "Bob").order(name).limit(10).all`,
	SilenceUsage: true,
	Version:      "0.1.0",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("database-url", "", "database connection string")
	flags.String("provider", "", "database provider (postgres, mysql, sqlite)")
	flags.String("namespace", "", "entity namespace prefix")
	flags.Bool("debug", false, "enable debug logging")

	viper.BindPFlag("database_url", flags.Lookup("database-url"))
	viper.BindPFlag("provider", flags.Lookup("provider"))
	viper.BindPFlag("namespace", flags.Lookup("namespace"))
	viper.BindPFlag("debug", flags.Lookup("debug"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration with flag overrides already merged by
// viper, stores it process-wide and initializes debug logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.Set(cfg)
	debug.Init(cfg.Debug)
	registerEntities(cfg)
	return cfg, nil
}

// registerEntities adds config-declared entities to the default registry.
func registerEntities(cfg *config.Config) {
	for _, spec := range cfg.Entities {
		e := &schema.EntityType{
			Name:       spec.Name,
			Table:      spec.Table,
			PrimaryKey: spec.PrimaryKey,
		}
		for _, f := range spec.Fields {
			e.Fields = append(e.Fields, schema.Field{Name: f.Name, Type: f.Type})
		}
		if len(spec.Assocs) > 0 {
			e.Assocs = make(map[string]schema.Assoc, len(spec.Assocs))
			for name, a := range spec.Assocs {
				e.Assocs[name] = schema.Assoc{Target: a.Target, ForeignKey: a.ForeignKey}
			}
		}
		schema.Register(e)
	}
}
