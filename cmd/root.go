package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cyqual-sec/aws-delete-default-vpc/awsauth"
	"github.com/cyqual-sec/aws-delete-default-vpc/logging"
	"github.com/cyqual-sec/aws-delete-default-vpc/tracing"
	"github.com/cyqual-sec/aws-delete-default-vpc/vpc"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
)

const envPrefix = "AWS_DELETE_DEFAULT_VPC"

var cfgFile string

// configFileErr is set by initConfig and reported once the command runs so
// that it gets the usual exit code
var configFileErr error

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aws-delete-default-vpc",
	Short: "Delete empty default VPCs from every enabled region of an AWS account",
	Long: `Finds the provider-created default VPC in each selected region and, when it
has no network interfaces, deletes it together with its internet gateway,
subnets and unused DHCP option set. Every deletion is confirmed unless --yolo
is given. Use --list to only report what exists.`,
	Example: `  aws-delete-default-vpc --all --list
  aws-delete-default-vpc --profile sandbox --include us-east-1,eu-west-1
  aws-delete-default-vpc --exclude us-east-1 --yolo`,
	Version:       tracing.Version(),
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer tracing.LogRecoverToExit(ctx, "aws-delete-default-vpc.root")

		if err := run(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return &runError{err: err}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	os.Exit(execute(context.Background(), rootCmd))
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	defer tracing.ShutdownTracer(ctx)

	if err == nil {
		return 0
	}

	code := exitCode(err)
	lf := log.Fields{"exit-code": code}

	switch code {
	case exitUsage:
		log.WithFields(lf).WithError(err).Errorf("Invalid arguments, see '%v --help'", cmd.CommandPath())
	case exitFatal:
		tracing.CaptureFatal(ctx, err)
		log.WithFields(lf).WithError(err).Error("Unexpected error")
	default:
		log.WithFields(lf).WithError(err).Error("Run aborted")
	}

	return code
}

// run wires the collaborators together and performs one run
func run(ctx context.Context, in io.Reader, out io.Writer) error {
	if configFileErr != nil {
		return &vpc.ConfigError{Reason: configFileErr.Error()}
	}

	config, err := runConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, span := tracing.Tracer().Start(ctx, "aws-delete-default-vpc")
	defer span.End()

	authConfig := authConfigFromViper(viper.GetViper())
	log.WithContext(ctx).WithFields(log.Fields{
		"aws-access-strategy": authConfig.ResolvedStrategy(),
		"aws-profile":         authConfig.Profile,
		"aws-target-role-arn": authConfig.TargetRoleARN,
		"bootstrap-region":    authConfig.BootstrapRegion,
		"filter":              config.Filter.Mode().String(),
		"regions":             config.Filter.Names(),
		"list":                config.ListOnly,
		"yolo":                config.AutoAccept,
	}).Debug("Got config")

	awsConfig, err := authConfig.AWSConfig(ctx)
	if err != nil {
		return &vpc.AuthError{Op: "unable to establish session", Err: err}
	}

	gate := vpc.NewGate(in, out, config.AutoAccept)
	gate.Decorate = Bold.TextStyle

	report, err := vpc.NewRunner(config, awsauth.NewAccount(awsConfig), gate).Run(ctx)
	if err != nil {
		return err
	}

	if err := printSummary(out, report); err != nil {
		log.WithContext(ctx).WithError(err).Warn("Could not render summary")
	}

	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// General config options
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional YAML config file. Every flag can also be set there or through "+envPrefix+"_<FLAG> environment variables")
	rootCmd.PersistentFlags().String("log", "info", "Set the log level. Valid values: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging with timestamps")
	rootCmd.PersistentFlags().Bool("json-log", false, "Set to true to emit logs as json for easier parsing.")

	// What to do
	rootCmd.PersistentFlags().BoolP("list", "l", false, "List default VPCs and the number of network interfaces in each, then exit without deleting anything")
	rootCmd.PersistentFlags().Bool("yolo", false, "Delete without asking for confirmation. Cannot be combined with --list")

	// Where to do it
	rootCmd.PersistentFlags().BoolP("all", "a", false, "Process every region enabled in the account")
	rootCmd.PersistentFlags().StringP("include", "i", "", "Comma-separated list of regions to process")
	rootCmd.PersistentFlags().StringP("exclude", "e", "", "Comma-separated list of regions to skip")
	rootCmd.MarkFlagsMutuallyExclusive("all", "include", "exclude")

	// Credentials
	rootCmd.PersistentFlags().String("profile", "", "The AWS profile to use. Defaults to the standard AWS credential chain")
	rootCmd.PersistentFlags().String("aws-access-strategy", awsauth.StrategyDefaults, "The strategy to use to access the AWS account. Valid values: 'access-key', 'external-id', 'profile', 'defaults'. Default: 'defaults'.")
	rootCmd.PersistentFlags().String("aws-access-key-id", "", "The ID of the access key to use")
	rootCmd.PersistentFlags().String("aws-secret-access-key", "", "The secret access key to use for auth")
	rootCmd.PersistentFlags().String("aws-external-id", "", "The external ID to use when assuming the role")
	rootCmd.PersistentFlags().String("aws-target-role-arn", "", "The role to assume in the target account")
	rootCmd.PersistentFlags().String("bootstrap-region", "", "Region used to look up the caller identity and the enabled regions. Defaults to the profile's region, then "+awsauth.FallbackRegion)

	// tracing
	rootCmd.PersistentFlags().Bool("otel", false, "If specified, configures opentelemetry and - optionally, see --sentry-dsn - sentry using their default environment configs.")
	rootCmd.PersistentFlags().String("honeycomb-api-key", "", "If specified, configures opentelemetry libraries to submit traces to honeycomb. This requires --otel to be set.")
	rootCmd.PersistentFlags().String("sentry-dsn", "", "If specified, configures sentry libraries to capture errors. This requires --otel to be set.")
	rootCmd.PersistentFlags().String("run-mode", "release", "Set the run mode for this service, 'release', 'debug' or 'test'. Defaults to 'release'.")
	rootCmd.PersistentFlags().Bool("stdout-trace-dump", false, "Dump all otel traces to stdout for debugging. This requires --otel to be set.")
	rootCmd.PersistentFlags().Bool("disable-ec2-detector", true, "Skip the EC2 metadata lookup when building the trace resource")

	// Bind these to viper
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	// Run this before we do anything to set up the loglevel
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Configure(log.StandardLogger(), logging.Options{
			Level:   viper.GetString("log"),
			Verbose: viper.GetBool("verbose"),
			JSON:    viper.GetBool("json-log"),
		})

		if viper.GetBool("otel") {
			if err := tracing.InitTracerWithUpstreams("aws-delete-default-vpc", viper.GetString("honeycomb-api-key"), viper.GetString("sentry-dsn")); err != nil {
				log.WithError(err).Error("Could not initialise tracing, continuing without it")
			} else {
				log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
					log.AllLevels[:log.GetLevel()+1]...,
				)))
			}
		}

		cmd.Flags().Visit(func(f *pflag.Flag) {
			if f.Name == "aws-secret-access-key" {
				return
			}
			log.WithFields(log.Fields{"flag": f.Name, "value": f.Value.String()}).Trace("Flag set on command line")
		})
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	replacer := strings.NewReplacer("-", "_")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match

	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("could not read config file %v: %w", cfgFile, err)
		return
	}
	log.Debugf("Using config file: %v", viper.ConfigFileUsed())
}
