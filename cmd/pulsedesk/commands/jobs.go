package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsedesk/am"
	"github.com/teranos/pulsedesk/automation"
	"github.com/teranos/pulsedesk/errors"
)

// JobsCmd manages automation jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run, list and import automation jobs",
	Long: `Automation jobs apply actions to tickets matching a condition, at the
10-minute buckets of their timeplan.

Examples:
  pulsedesk jobs list              # Show jobs and their last pass
  pulsedesk jobs run               # Run one pass now
  pulsedesk jobs run --watch       # Run a pass every automation.run_period
  pulsedesk jobs import jobs.yaml  # Create or update jobs by name`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List automation jobs",
	RunE:  runJobsList,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one automation pass",
	RunE:  runJobsRun,
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import job definitions from a YAML or TOML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsImport,
}

var jobsWatch bool

func init() {
	jobsRunCmd.Flags().BoolVar(&jobsWatch, "watch", false, "Keep running a pass every automation.run_period")
	JobsCmd.AddCommand(jobsListCmd, jobsRunCmd, jobsImportCmd)
}

func loadApp() (*app, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	database, err := openDatabase(cfg, "")
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cfg, database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return a, func() { database.Close() }, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	a, closeDB, err := loadApp()
	if err != nil {
		return err
	}
	defer closeDB()

	jobs, err := a.jobs.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No automation jobs")
		return nil
	}

	data := pterm.TableData{{"ID", "Name", "Active", "Entity", "Last run", "Matching", "Processed"}}
	for _, j := range jobs {
		lastRun := "never"
		if j.LastRunAt != nil {
			lastRun = j.LastRunAt.Local().Format(time.DateTime)
		}
		entity := j.Entity()
		if j.DefinitionErr != nil {
			entity = pterm.Red(automation.SkipInvalid)
		}
		data = append(data, []string{
			strconv.FormatInt(j.ID, 10),
			j.Name,
			strconv.FormatBool(j.Active),
			entity,
			lastRun,
			strconv.Itoa(j.Matching),
			strconv.Itoa(j.Processed),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	a, closeDB, err := loadApp()
	if err != nil {
		return err
	}
	defer closeDB()

	actor := a.cfg.Automation.ActorID
	if jobsWatch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a.runner.Start(ctx, actor)
		pterm.Info.Printfln("Running automation every %s, Ctrl+C to stop", a.cfg.Automation.RunPeriod)
		<-ctx.Done()
		a.runner.Stop()
		return nil
	}

	res, err := a.runner.RunOnce(cmd.Context(), time.Now(), actor)
	if err != nil {
		return err
	}
	printPass(res)
	return nil
}

func printPass(res automation.PassResult) {
	if len(res.Jobs) == 0 {
		pterm.Info.Println("No active automation jobs")
		return
	}
	data := pterm.TableData{{"Job", "Result", "Matching", "Processed", "Failed"}}
	for _, j := range res.Jobs {
		result := "ran"
		switch {
		case j.Err != nil:
			result = pterm.Red(j.Err.Error())
		case j.Skipped != "":
			result = pterm.Gray("skipped: " + j.Skipped)
		}
		data = append(data, []string{
			j.Name, result,
			strconv.Itoa(j.Matching), strconv.Itoa(j.Processed), strconv.Itoa(j.Failed),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Info.Printfln("%d job(s) ran, %d record(s) written", res.Ran(), res.Processed())
}

func runJobsImport(cmd *cobra.Command, args []string) error {
	defs, err := automation.LoadDefinitionsFile(args[0])
	if err != nil {
		return err
	}

	a, closeDB, err := loadApp()
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := automation.Import(cmd.Context(), a.jobs, a.runner, defs, a.cfg.Automation.ActorID, time.Now())
	if err != nil {
		return err
	}
	pterm.Success.Println(fmt.Sprintf("Imported %s: %d created, %d updated", args[0], res.Created, res.Updated))
	return nil
}
