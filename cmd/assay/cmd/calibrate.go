package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/adapter/outbound/state"
)

var (
	calibrateBaselines  []string
	calibrateScoresPath string
	calibrateMetric     string
	calibrateSuite      string
	calibratePercentile float64
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Recommend a min_score threshold from historical scores",
	Long: `calibrate gathers historical scores for one metric, either from one or
more prior baseline.json files (--baseline, repeatable) or from a plain
JSON array of numbers (--scores), and reports the p50/p90/p99 of that
distribution plus a recommended min_score at --percentile and a
recommended max_drop sized off the p50-p99 spread.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringArrayVar(&calibrateBaselines, "baseline", nil, "path to a prior baseline.json (repeatable)")
	calibrateCmd.Flags().StringVar(&calibrateScoresPath, "scores", "", "path to a JSON file containing a flat array of historical scores")
	calibrateCmd.Flags().StringVar(&calibrateMetric, "metric", "score", "metric name to filter baseline entries by")
	calibrateCmd.Flags().StringVar(&calibrateSuite, "suite", "", "suite name, used only when a baseline file does not yet exist")
	calibrateCmd.Flags().Float64Var(&calibratePercentile, "percentile", 90, "target percentile (0-100) for the recommended min_score")
	rootCmd.AddCommand(calibrateCmd)
}

type calibrationReport struct {
	Samples          int     `json:"samples"`
	P50              float64 `json:"p50"`
	P90              float64 `json:"p90"`
	P99              float64 `json:"p99"`
	RecommendedMin   float64 `json:"recommended_min_score"`
	RecommendedDrop  float64 `json:"recommended_max_drop"`
	TargetPercentile float64 `json:"target_percentile"`
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	scores, err := gatherCalibrationScores()
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return fmt.Errorf("no historical scores found: pass --baseline or --scores")
	}

	sort.Float64s(scores)
	p50 := percentileOf(scores, 50)
	p90 := percentileOf(scores, 90)
	p99 := percentileOf(scores, 99)

	report := calibrationReport{
		Samples:          len(scores),
		P50:              p50,
		P90:              p90,
		P99:              p99,
		RecommendedMin:   percentileOf(scores, calibratePercentile),
		RecommendedDrop:  p99 - p50,
		TargetPercentile: calibratePercentile,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("render calibration report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

func gatherCalibrationScores() ([]float64, error) {
	var scores []float64

	for _, path := range calibrateBaselines {
		store := state.NewFileBaselineStore(path, newLogger())
		loaded, err := store.Load(calibrateSuite)
		if err != nil {
			return nil, fmt.Errorf("load baseline %q: %w", path, err)
		}
		for _, e := range loaded.ToDomain().Entries {
			if e.Metric == calibrateMetric {
				scores = append(scores, e.Score)
			}
		}
	}

	if calibrateScoresPath != "" {
		data, err := os.ReadFile(calibrateScoresPath)
		if err != nil {
			return nil, fmt.Errorf("read scores file %q: %w", calibrateScoresPath, err)
		}
		var raw []float64
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse scores file %q as a JSON number array: %w", calibrateScoresPath, err)
		}
		scores = append(scores, raw...)
	}

	return scores, nil
}

// percentileOf returns the value at pct (0-100) in a sorted slice via
// linear interpolation between the two nearest ranks.
func percentileOf(sorted []float64, pct float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (pct / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
