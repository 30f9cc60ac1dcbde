package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"emr-backup-sync/internal/backup"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var syncInterval int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize backups with the configured cloud backend",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run one sync cycle",
	Long: `Run a single sync cycle against the configured storage backend.

The newest local and remote snapshots are compared; whichever side the
conflict resolution picks is transferred whole. Archives are never merged.`,
	RunE: runSyncNow,
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background sync loop until interrupted",
	RunE:  runSyncRun,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and storage quota",
	RunE:  runSyncStatus,
}

var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives held by the cloud backend",
	RunE:  runSyncList,
}

var recoveryKeyCmd = &cobra.Command{
	Use:   "recovery-key",
	Short: "Generate a recovery key",
	Long: `Generate a recovery key that can decrypt backups without the password.

Store it somewhere safe and offline. Anyone holding this key can read
your backups; losing both the password and the key makes them
unrecoverable.`,
	RunE: runRecoveryKey,
}

var deviceIDCmd = &cobra.Command{
	Use:   "device-id",
	Short: "Generate a device identifier for the managed cloud backend",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(uuid.New().String())
	},
}

func init() {
	syncRunCmd.Flags().IntVar(&syncInterval, "interval", 24, "hours between background sync cycles")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncRunCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncListCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recoveryKeyCmd)
	rootCmd.AddCommand(deviceIDCmd)
}

func runSyncNow(cmd *cobra.Command, args []string) error {
	app, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	if app.Coordinator() == nil {
		return fmt.Errorf("cloud sync is disabled, enable it in the configuration")
	}

	password := app.Config().Sync.Password
	if password == "" {
		if password, err = promptPassword("Backup password: "); err != nil {
			return err
		}
	}

	started, err := app.Coordinator().SyncNow(cmd.Context(), password)
	if err != nil {
		return err
	}
	if !started {
		fmt.Println(warnColor("A sync is already running."))
		return nil
	}

	fmt.Println(successColor("Sync complete."))
	return nil
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	app, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	if app.Coordinator() == nil {
		return fmt.Errorf("cloud sync is disabled, enable it in the configuration")
	}

	if err := app.Start(syncInterval); err != nil {
		return err
	}
	fmt.Printf("Background sync running every %d hours. Press Ctrl+C to stop.\n", syncInterval)
	return app.RunUntilSignal()
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	app, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	if app.Coordinator() == nil {
		fmt.Println("Cloud sync: " + warnColor("disabled"))
		return nil
	}

	state := app.Coordinator().State()

	fmt.Println("Cloud sync: " + successColor("enabled"))
	fmt.Printf("Backend: %s\n", app.Config().Storage.Provider)
	if state.Syncing {
		fmt.Println("Currently: " + infoColor("syncing"))
	}
	if !state.LastSyncTime.IsZero() {
		outcome := successColor("ok")
		if !state.LastSyncSuccess {
			outcome = errorColor("failed: " + state.LastError)
		}
		fmt.Printf("Last sync: %s (%s)\n", state.LastSyncTime.Format("2006-01-02 15:04:05"), outcome)
	}
	if !state.NextSyncTime.IsZero() {
		fmt.Printf("Next sync: %s\n", state.NextSyncTime.Format("2006-01-02 15:04:05"))
	}
	if state.StorageQuota > 0 {
		fmt.Printf("Storage: %s of %s used\n", formatSize(state.StorageUsed), formatSize(state.StorageQuota))
	}
	return nil
}

func runSyncList(cmd *cobra.Command, args []string) error {
	app, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	if app.Orchestrator() == nil {
		return fmt.Errorf("cloud sync is disabled, enable it in the configuration")
	}

	objects, err := app.Orchestrator().ListCloudBackups(cmd.Context())
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Println("No cloud backups found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODIFIED\tSIZE\tKEY")
	for _, obj := range objects {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			obj.LastModified.Format("2006-01-02 15:04:05"),
			formatSize(obj.SizeBytes),
			obj.Key)
	}
	return w.Flush()
}

func runRecoveryKey(cmd *cobra.Command, args []string) error {
	key, err := backup.GenerateRecoveryKey()
	if err != nil {
		return err
	}

	fmt.Println(warnColor("Write this key down and store it offline:"))
	fmt.Println()
	fmt.Println("  " + backup.FormatRecoveryKey(key))
	fmt.Println()
	fmt.Println("Anyone holding this key can decrypt your backups.")
	return nil
}
