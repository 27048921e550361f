package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/readtrack/internal/clock"
	"github.com/goodtune/readtrack/internal/config"
	"github.com/goodtune/readtrack/internal/session"
	"github.com/goodtune/readtrack/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var checkDate string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Inspect stored usage statistics",
	Long:  `Check storage connectivity and print the daily stats and streak readtrack has recorded.`,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDate, "date", "", "Date to inspect (YYYY-MM-DD) - defaults to today")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	kv, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer kv.Close()

	date := checkDate
	if date == "" {
		date = storage.DateKey(time.Now())
	}
	if _, err := time.Parse(storage.DateKeyFormat, date); err != nil {
		return fmt.Errorf("invalid date: %s (must be YYYY-MM-DD)", checkDate)
	}

	tracker := session.NewTracker(kv, session.Config{SyncInterval: -1}, clock.RealClock{}, logger)

	ctx := context.Background()
	daily, err := tracker.Daily().Get(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to read daily stats: %w", err)
	}

	streak, err := tracker.Streak().Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read streak: %w", err)
	}

	recent, err := tracker.RecentSessions(ctx, 5)
	if err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}

	printCheckResult(date, daily, streak, recent)
	return nil
}

// printCheckResult prints stored statistics with colors
func printCheckResult(date string, daily *storage.DailyStats, streak *storage.ReadingStreak, recent []storage.ReadingSession) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Printf("READING STATS  %s\n", date)
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Time read:   %s\n", (time.Duration(daily.TotalSeconds) * time.Second).String())
	fmt.Printf("Sessions:    %d\n", daily.SessionCount)
	fmt.Printf("Pages:       %d\n", daily.PagesRead)
	fmt.Printf("Items:       %d\n", len(daily.ItemsTouched))
	for item, secs := range daily.PerItemSeconds {
		fmt.Printf("  %-24s %s\n", item, (time.Duration(secs) * time.Second).String())
	}
	fmt.Println()

	cyan.Print("Streak:     ")
	if streak.CurrentStreak > 0 {
		green.Printf("%d day(s)", streak.CurrentStreak)
	} else {
		yellow.Print("none")
	}
	fmt.Printf("  (longest %d, last active %s)\n", streak.LongestStreak, streak.LastActiveDate)

	if len(recent) > 0 {
		fmt.Println()
		cyan.Println("Recent sessions:")
		for _, s := range recent {
			fmt.Printf("  %s  %-24s %6.0fs  %s\n",
				s.EndTime.Format("2006-01-02 15:04"),
				s.ItemID,
				s.DurationSeconds(),
				s.ChapterLabel)
		}
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
