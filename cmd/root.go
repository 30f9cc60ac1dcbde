package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"emr-backup-sync/internal/application"
	"emr-backup-sync/internal/backup"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	cfgFile   string
	storePath string
	backupDir string
	verbose   bool
	quiet     bool
	noColor   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "emr-backup-sync",
	Short: "Encrypted backup and cloud sync for the patient record store",
	Long: `emr-backup-sync creates encrypted backups of the local patient record
store and synchronizes them with a cloud storage backend.

Archives are encrypted on this device with a key derived from your
password; the storage backend only ever sees opaque blobs. Without the
password or the recovery key, backups cannot be read.

Examples:
  # Create an encrypted backup
  emr-backup-sync backup create --encrypt

  # List local backups
  emr-backup-sync backup list

  # Restore from an archive
  emr-backup-sync backup restore backups/backup_2026-08-29_10-00-00.encrypted.zip

  # Run one sync cycle against the configured backend
  emr-backup-sync sync now

  # Generate a recovery key
  emr-backup-sync recovery-key`,
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorColor("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./emr-backup-sync.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "path to the record store file")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "", "directory holding backup archives")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	viper.BindPFlag("backup_dir", rootCmd.PersistentFlags().Lookup("backup-dir"))
	viper.BindPFlag("dataset.store_path", rootCmd.PersistentFlags().Lookup("store"))

	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createVersionCommand())
}

// initConfig reads the config file and environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("emr-backup-sync")
	}

	viper.SetEnvPrefix("EMR_BACKUP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		cfgFile = viper.ConfigFileUsed()
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", cfgFile)
		}
	}

	if noColor || (!isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

// loadApp builds the full application from the effective configuration
func loadApp(ctx context.Context) (*application.Application, error) {
	loader := backup.NewConfigLoader(cfgFile)
	config, err := loader.LoadConfig()
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(config)

	if config.Dataset.StorePath == "" {
		return nil, fmt.Errorf("no record store configured, set --store or dataset.store_path")
	}

	dataset, err := backup.NewFileDataset(config.Dataset.StorePath, config.Dataset.VectorIndexPath, nil)
	if err != nil {
		return nil, err
	}
	oracle := backup.NewMtimeOracle(config.Dataset.StorePath, config.Dataset.VectorIndexPath)

	return application.NewApplication(ctx, application.Options{
		Config:     config,
		AppVersion: version,
		Dataset:    dataset,
		Oracle:     oracle,
		LogOutput:  os.Stderr,
	})
}

// applyFlagOverrides folds CLI flags into a loaded configuration
func applyFlagOverrides(config *backup.BackupSystemConfig) {
	if backupDir != "" {
		config.BackupDir = backupDir
	}
	if storePath != "" {
		config.Dataset.StorePath = storePath
	}
	if verbose {
		config.Logging.Level = "verbose"
	}
	if quiet {
		config.Logging.Level = "quiet"
	}
}

// promptPassword reads a password without echo when stdin is a terminal
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	var pw string
	if _, err := fmt.Fscanln(os.Stdin, &pw); err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return pw, nil
}

// Output helpers. Colors degrade to plain text on non-TTY output.

func successColor(s string) string {
	return color.New(color.FgGreen).Sprint(s)
}

func errorColor(s string) string {
	return color.New(color.FgRed).Sprint(s)
}

func warnColor(s string) string {
	return color.New(color.FgYellow).Sprint(s)
}

func infoColor(s string) string {
	return color.New(color.FgCyan).Sprint(s)
}

// createConfigCommand generates a starter configuration file
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print a sample configuration file",
		Long: `Print a complete configuration template to stdout.

Examples:
  emr-backup-sync config > emr-backup-sync.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			os.Stdout.Write(backup.GenerateDefaultConfigYAML())
		},
	}
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("emr-backup-sync version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}
