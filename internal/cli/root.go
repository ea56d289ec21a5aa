// Package cli implements the stratoctl CLI commands.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Register state backends and providers via init().
	_ "github.com/strato-labs/stratoctl/pkg/provider/mem"
	_ "github.com/strato-labs/stratoctl/pkg/state/backend/azurerm"
	_ "github.com/strato-labs/stratoctl/pkg/state/backend/gcs"
	_ "github.com/strato-labs/stratoctl/pkg/state/backend/local"
	_ "github.com/strato-labs/stratoctl/pkg/state/backend/s3"
)

var (
	cfgFile string
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stratoctl",
	Short: "Reconcile declarative infrastructure to its desired state",
	Long: `stratoctl reads a declarative configuration describing clusters, node
pools, and related infrastructure, compares it against the recorded state of
a stack, and drives the platform to match: creating what is missing,
updating what changed, and destroying what was removed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stratoctl/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "local", "state backend type (local, s3, gcs, azurerm)")
	rootCmd.PersistentFlags().StringArray("backend-config", nil, "backend configuration (key=value)")
	rootCmd.PersistentFlags().String("provider", "mem", "resource provider")
	rootCmd.PersistentFlags().StringArray("provider-config", nil, "provider configuration (key=value)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (trace, debug, info, warn, error)")

	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("STRATOCTL")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newDestroyCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.stratoctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	_ = viper.ReadInConfig()
}

func initLogging(cmd *cobra.Command) {
	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = zerolog.WarnLevel
	}

	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        cmd.ErrOrStderr(),
		TimeFormat: time.Kitchen,
	}).Level(level).With().Timestamp().Logger()
}
