package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/config"
	"remindbot/internal/schedule"
	"remindbot/internal/tick"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect schedule expressions",
	}
	cmd.AddCommand(scheduleCheckCmd())
	return cmd
}

func scheduleCheckCmd() *cobra.Command {
	var (
		tz   string
		from string
		n    int
	)
	cmd := &cobra.Command{
		Use:     "check EXPR",
		Short:   "Parse EXPR and print its next occurrences",
		Example: "  remindbot schedule check EVERYDAY@08:30\n  remindbot schedule check DAYS@mon,wed@07:00 -n 5 --tz UTC",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := schedule.Parse(args[0])
			if err != nil {
				return err
			}
			loc, err := tick.LoadLocation(tz)
			if err != nil {
				return err
			}
			after := time.Now().In(loc)
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				after = t.In(loc)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "canonical: %s\n", rule)
			times, err := rule.NextN(after, n)
			for _, t := range times {
				fmt.Fprintf(out, "  %s\n", t.Format("Mon 2006-01-02 15:04 MST"))
			}
			if len(times) == 0 && err != nil {
				fmt.Fprintf(out, "  (%v)\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", config.DefaultTimezone, "IANA zone to evaluate in")
	cmd.Flags().StringVar(&from, "from", "", "RFC3339 start instant (default now)")
	cmd.Flags().IntVarP(&n, "count", "n", 3, "occurrences to print")
	return cmd
}
