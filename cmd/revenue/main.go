// Command revenue prints a sales summary for a reporting window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sarai-Chinwag/sell-my-images/internal/adapter/repo"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		fromFlag string
		toFlag   string
		daysFlag int
	)
	flag.StringVar(&fromFlag, "from", "", "window start (YYYY-MM-DD)")
	flag.StringVar(&toFlag, "to", "", "window end (YYYY-MM-DD, inclusive)")
	flag.IntVar(&daysFlag, "days", 30, "trailing window in days, used when -from is not set")
	flag.Parse()

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -daysFlag)
	to := now
	if fromFlag != "" {
		parsed, err := time.Parse("2006-01-02", fromFlag)
		if err != nil {
			exitWithError(fmt.Errorf("invalid -from: %w", err))
		}
		from = parsed
	}
	if toFlag != "" {
		parsed, err := time.Parse("2006-01-02", toFlag)
		if err != nil {
			exitWithError(fmt.Errorf("invalid -to: %w", err))
		}
		to = parsed.Add(24*time.Hour - time.Second)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		exitWithError(err)
	}
	defer pool.Close()

	summary, err := repo.NewJobRepository(pool).RevenueSummary(ctx, from, to)
	if err != nil {
		exitWithError(err)
	}

	fmt.Printf("Revenue %s to %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	fmt.Printf("  completed jobs: %d\n", summary.CompletedJobs)
	fmt.Printf("  revenue:        $%.2f\n", float64(summary.CustomerTotalCents)/100)
	fmt.Printf("  provider cost:  $%.2f\n", float64(summary.ProviderTotalCents)/100)
	fmt.Printf("  profit:         $%.2f\n", float64(summary.ProfitCents())/100)
	for _, res := range summary.ByResolution {
		fmt.Printf("  %-3s jobs=%-4d revenue=$%.2f cost=$%.2f\n",
			res.Resolution, res.Jobs,
			float64(res.CustomerTotalCents)/100,
			float64(res.ProviderTotalCents)/100)
	}
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "revenue: %v\n", err)
	os.Exit(1)
}
