package main

import (
	"fmt"
	"os"
	"time"

	"slicerbak/internal/app"
	"slicerbak/internal/archive"
	"slicerbak/internal/config"
	"slicerbak/internal/encryption"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config (run 'slicerbak config init' first): %w", err)
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = defaults["archive_dir"]
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaults["log_dir"]
	}

	if root, _ := cmd.Flags().GetString("config-root"); root != "" {
		cfg.ConfigRoot = root
	}

	a, err := app.New(cfg, printProgress(cmd))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// printProgress returns a progress callback printing one line per file when
// --verbose is set, nil otherwise.
func printProgress(cmd *cobra.Command) func(done, total int, path string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	return func(done, total int, path string) {
		fmt.Printf("[%d/%d] %s\n", done, total, path)
	}
}

// promptPassphrase reads a passphrase without echo when --encrypt or an
// encrypted archive requires one.
func promptPassphrase(confirm bool) (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(pass) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if string(pass) != string(again) {
			return "", fmt.Errorf("passphrases do not match")
		}
	}
	return string(pass), nil
}

// passphraseFor returns the --passphrase flag value, prompting on the
// terminal when the flag is empty and the archive is age-encrypted.
func passphraseFor(archivePath, flagValue string) (string, error) {
	if flagValue != "" || !encryption.IsEncrypted(archivePath) {
		return flagValue, nil
	}
	return promptPassphrase(false)
}

// formatSize renders a byte count human-readably.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

var rootCmd = &cobra.Command{
	Use:   "slicerbak",
	Short: "Backup, restore, and compare slicer configuration",
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Snapshot the slicer configuration into an archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		var passphrase string
		if encrypt {
			var err error
			passphrase, err = promptPassphrase(true)
			if err != nil {
				return err
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Save(app.SaveOptions{Output: output, Passphrase: passphrase})
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}

		fmt.Printf("Saved %d file(s) (%s) to %s\n",
			result.FileCount, formatSize(result.TotalSize), result.ArchivePath)
		if result.Encrypted {
			fmt.Println("Archive is encrypted.")
		}
		for _, w := range result.Warnings {
			color.Yellow("warning: %s: %s", w.Path, w.Reason)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE",
	Short: "Restore slicer configuration from an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		policyName, _ := cmd.Flags().GetString("policy")
		noSafety, _ := cmd.Flags().GetBool("no-safety")
		pass, _ := cmd.Flags().GetString("passphrase")

		policy, err := archive.ParsePolicy(policyName)
		if err != nil {
			return err
		}

		pass, err = passphraseFor(args[0], pass)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Restore(args[0], app.RestoreOptions{
			Target:     target,
			Policy:     policy,
			Passphrase: pass,
			SkipSafety: noSafety,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		if result.SafetyArchive != "" {
			fmt.Printf("Safety archive: %s\n", result.SafetyArchive)
		}
		rep := result.Report
		fmt.Printf("Restored %d file(s) to %s\n", len(rep.Restored), result.Target)
		for _, p := range rep.Corrupt {
			color.Red("corrupt: %s", p)
		}
		for _, p := range rep.Skipped {
			color.Yellow("skipped: %s", p)
		}
		if !rep.OK {
			return fmt.Errorf("restore completed with %d corrupt and %d skipped entr(ies)",
				len(rep.Corrupt), len(rep.Skipped))
		}
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare OLD [NEW]",
	Short: "Compare archives and the live configuration",
	Long: `Compare two configuration states. Each argument is an archive file or a
directory; when NEW is omitted the live configuration root is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, _ := cmd.Flags().GetString("passphrase")

		newRef := ""
		if len(args) > 1 {
			newRef = args[1]
		}

		var err error
		if pass, err = passphraseFor(args[0], pass); err != nil {
			return err
		}
		if newRef != "" {
			if pass, err = passphraseFor(newRef, pass); err != nil {
				return err
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Compare(args[0], newRef, pass)
		if err != nil {
			return fmt.Errorf("compare failed: %w", err)
		}

		for _, p := range result.Added {
			color.Green("+ %s", p)
		}
		for _, p := range result.Removed {
			color.Red("- %s", p)
		}
		for _, c := range result.Modified {
			color.Yellow("~ %s (%s -> %s)", c.Path, formatSize(c.OldSize), formatSize(c.NewSize))
		}

		if !result.HasChanges() {
			fmt.Println("No changes.")
		} else {
			fmt.Printf("%d added, %d removed, %d modified, %d unchanged\n",
				len(result.Added), len(result.Removed), len(result.Modified), len(result.Unchanged))
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info ARCHIVE",
	Short: "Show an archive's manifest summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, _ := cmd.Flags().GetString("passphrase")

		pass, err := passphraseFor(args[0], pass)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.ArchiveInfo(args[0], pass)
		if err != nil {
			return err
		}

		var total int64
		for _, f := range m.Files {
			total += f.Size
		}
		fmt.Printf("Archive:  %s\n", args[0])
		fmt.Printf("Created:  %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Format:   v%d\n", m.FormatVersion)
		fmt.Printf("Checksum: %s\n", m.Checksum)
		fmt.Printf("Files:    %d (%s)\n", len(m.Files), formatSize(total))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%-9s %s  %-8s %-8s %s\n",
				op.Kind,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Detail,
			)
		}
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push ARCHIVE",
	Short: "Upload an archive to the cloud store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Push(args[0]); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		fmt.Printf("Pushed %s\n", args[0])
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull [NAME]",
	Short: "Download an archive from the cloud store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		destDir, _ := cmd.Flags().GetString("dest")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			remotes, err := a.RemoteArchives()
			if err != nil {
				return err
			}
			if len(remotes) == 0 {
				fmt.Println("No remote archives.")
				return nil
			}
			for _, r := range remotes {
				fmt.Printf("%s  %s  %s\n",
					r.ModTime.Format("2006-01-02 15:04:05"), formatSize(r.Size), r.Name)
			}
			return nil
		}

		path, err := a.Pull(args[0], destDir)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		fmt.Printf("Pulled %s to %s\n", args[0], path)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("App:         %s\n", cfg.AppName)
		fmt.Printf("Archive Dir: %s\n", cfg.ArchiveDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("App:         %s\n", cfg.AppName)
		if cfg.ConfigRoot != "" {
			fmt.Printf("Config Root: %s\n", cfg.ConfigRoot)
		}
		fmt.Printf("Archive Dir: %s\n", cfg.ArchiveDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Ignore:      %v\n", cfg.Ignore)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config-root", "", "Override the slicer configuration root")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print per-file progress")

	saveCmd.Flags().StringP("output", "o", "", "Archive output path")
	saveCmd.Flags().Bool("encrypt", false, "Encrypt the archive with a passphrase")
	rootCmd.AddCommand(saveCmd)

	restoreCmd.Flags().String("target", "", "Restore destination (default: configuration root)")
	restoreCmd.Flags().String("policy", "strict", "Validation policy: strict or best-effort")
	restoreCmd.Flags().Bool("no-safety", false, "Skip the pre-restore safety archive")
	restoreCmd.Flags().String("passphrase", "", "Passphrase for encrypted archives")
	rootCmd.AddCommand(restoreCmd)

	compareCmd.Flags().String("passphrase", "", "Passphrase for encrypted archives")
	rootCmd.AddCommand(compareCmd)

	infoCmd.Flags().String("passphrase", "", "Passphrase for encrypted archives")
	rootCmd.AddCommand(infoCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(pushCmd)

	pullCmd.Flags().String("dest", "", "Destination directory (default: archive dir)")
	rootCmd.AddCommand(pullCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
