package commands

import (
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsedesk/am"
	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/monitor"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Migrate and inspect the pulsedesk database",
	Long: `db - Manage the pulsedesk SQLite database

Examples:
  pulsedesk db migrate   # Apply pending schema migrations
  pulsedesk db stats     # Show row counts and storage`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd, dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	before, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		return err
	}
	all, err := db.Migrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range all {
		if !before[m.Version] {
			pterm.Success.Printfln("Applied %s", m.Filename)
			applied++
		}
	}
	if applied == 0 {
		pterm.Info.Printfln("%s is up to date (%d migrations)", cfg.Database.Path, len(all))
	}
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	st, err := monitor.NewStatusCollector(database, cfg.Database.Path).Collect(cmd.Context())
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Database " + cfg.Database.Path)
	tables := make([]string, 0, len(st.Counts))
	for t := range st.Counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	data := pterm.TableData{{"Table", "Rows", "Last created"}}
	for _, t := range tables {
		last := "-"
		if ts := st.LastCreatedAt[t]; ts != nil {
			last = ts.Local().Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{t, strconv.Itoa(st.Counts[t]), last})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Info.Printfln("Agents: %d", st.Agents)
	if st.Storage != nil {
		pterm.Info.Printfln("Storage %s: %.1f%% used (%d of %d bytes free)",
			st.Storage.Path, st.Storage.UsedPercent, st.Storage.FreeBytes, st.Storage.TotalBytes)
	}
	return nil
}
