package cmd

import (
	"fmt"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/journal"
	"github.com/Zia-Rashid/Krusty-Krab/pkg/id"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the fill journal",
	Long: `Query and display fills and account snapshots from the SQLite journal.

Subcommands:
  fill     - Get details of a specific fill by ID
  fills    - List fills for a day (default today)
  account  - List account snapshots for a day (default today)

Examples:
  krusty journal fill <fill-id>
  krusty journal fills
  krusty journal fills 2024-01-15
  krusty journal account --days 7`,
}

var journalFillCmd = &cobra.Command{
	Use:   "fill <fill-id>",
	Short: "Get details of a specific fill",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalFill,
}

var journalFillsCmd = &cobra.Command{
	Use:   "fills [YYYY-MM-DD]",
	Short: "List fills",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalFills,
}

var journalAccountCmd = &cobra.Command{
	Use:   "account [YYYY-MM-DD]",
	Short: "List account snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalAccount,
}

var (
	journalDBPath string
	journalDays   int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalFillCmd)
	journalCmd.AddCommand(journalFillsCmd)
	journalCmd.AddCommand(journalAccountCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./krusty.db", "path to SQLite journal DB")
	journalCmd.PersistentFlags().IntVar(&journalDays, "days", 1, "number of days to list, ending with the given day")
}

func runJournalFill(cmd *cobra.Command, args []string) error {
	if _, err := id.Time(args[0]); err != nil {
		return fmt.Errorf("fill id %q: %w", args[0], err)
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	f, err := j.GetFill(args[0])
	if err != nil {
		return fmt.Errorf("get fill: %w", err)
	}

	fmt.Println(journal.FormatFillOrg(f))
	return nil
}

func runJournalFills(cmd *cobra.Command, args []string) error {
	start, end, err := journalRange(args)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	fills, err := j.ListFills(start, end)
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}
	if len(fills) == 0 {
		fmt.Println("no fills")
		return nil
	}

	fmt.Println(journal.FormatFillsOrg(fills))
	return nil
}

func runJournalAccount(cmd *cobra.Command, args []string) error {
	start, end, err := journalRange(args)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	snaps, err := j.ListAccount(start, end)
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}

	fmt.Print(journal.FormatAccountOrg(snaps))
	return nil
}

// journalRange covers --days local days ending with args[0] (or today).
func journalRange(args []string) (time.Time, time.Time, error) {
	loc := time.Local
	day := time.Now().In(loc).Format("2006-01-02")
	if len(args) > 0 {
		day = args[0]
	}
	start, end, err := dayBounds(loc, day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if journalDays > 1 {
		start = start.AddDate(0, 0, -(journalDays - 1))
	}
	return start, end, nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
