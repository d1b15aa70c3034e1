package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pitwall/core/radio"
	"pitwall/server"

	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	transcribeYear int
	transcribeGP   string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "批量转写车队无线电",
	Long: `转写一个赛季（或指定的一站）正赛、排位赛和冲刺赛的车队无线电。
已转写的录音会被跳过，中断后重新运行即可继续。`,
	Example: `  pitwall transcribe --year 2023
  pitwall transcribe --year 2024 --gp silverstone`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if transcribeYear < 1950 || transcribeYear > 2100 {
			return fmt.Errorf("--year is required (1950-2100)")
		}

		app, err := server.NewApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("转写中"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
		progress := func(done, total int, label string) {
			bar.ChangeMax(total)
			bar.Describe(label)
			_ = bar.Set(done)
		}

		var result *radio.SweepResult
		if transcribeGP != "" {
			result, err = app.Sweeper.GP(ctx, transcribeYear, transcribeGP, progress)
		} else {
			result, err = app.Sweeper.Year(ctx, transcribeYear, progress)
		}
		_ = bar.Finish()
		if result != nil {
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().IntVarP(&transcribeYear, "year", "y", 0, "赛季年份")
	transcribeCmd.Flags().StringVarP(&transcribeGP, "gp", "g", "", "只转写这一站（可用别名，如 monaco、silverstone）")
}
