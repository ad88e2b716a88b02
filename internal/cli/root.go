package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"healthai/internal/analytics"
	"healthai/internal/generator"
	"healthai/internal/models"

	"github.com/spf13/cobra"
)

type app struct {
	out  io.Writer
	seed uint64
}

// NewRootCmd создает корневую команду healthctl
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "healthctl",
		Short:         "Offline tools for the HealthAI simulator and anomaly detector",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().Uint64Var(&a.seed, "seed", 0, "random seed for the generator (0 = time based)")

	root.AddCommand(newGenerateCmd(a), newHistoryCmd(a), newClassifyCmd(a))
	return root
}

func (a *app) generator() *generator.Generator {
	seed := a.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return generator.NewSeeded(seed)
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print one simulated reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printJSON(a.generator().Reading().View())
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print hourly readings going back the given number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			readings := a.generator().History(days)
			views := make([]models.ReadingView, len(readings))
			for i, r := range readings {
				views[i] = r.View()
			}
			return a.printJSON(views)
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days")
	return cmd
}

func newClassifyCmd(a *app) *cobra.Command {
	var heartRate, bloodOxygen float64
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a reading with a freshly bootstrapped detector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			detector := analytics.NewDetector(analytics.DefaultConfig(), nil)
			if err := detector.Bootstrap(); err != nil {
				return err
			}

			anomaly, confidence, err := detector.Classify(heartRate, bloodOxygen)
			if err != nil {
				return err
			}

			prediction := models.PredictionNormal
			if anomaly {
				prediction = models.PredictionAnomaly
			}
			return a.printJSON(models.PredictResponse{
				Prediction:  prediction,
				Confidence:  confidence,
				HeartRate:   heartRate,
				BloodOxygen: bloodOxygen,
				Timestamp:   models.FormatTimestamp(time.Now()),
			})
		},
	}
	cmd.Flags().Float64Var(&heartRate, "heart-rate", models.DefaultHeartRate, "heart rate, bpm")
	cmd.Flags().Float64Var(&bloodOxygen, "blood-oxygen", models.DefaultBloodOxygen, "blood oxygen, %")
	return cmd
}
