// forge-boot is the host bootstrap driver: it loads configuration, discovers
// extensions from a manifest directory, runs the composition pipeline, and
// prints the boot report. Production hosts embed the pipeline the same way
// with their own provider and script runtime.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/riftgate/forge/pkg/boot"
	"github.com/riftgate/forge/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: forge-boot <extension-manifest-dir> [boot-profile.yaml]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if len(os.Args) > 2 {
		merged, err := config.LoadProfile(os.Args[2], cfg)
		if err != nil {
			logger.Error("boot profile load failed", "err", err)
			os.Exit(1)
		}
		cfg = merged
	}

	pipeline, err := boot.NewPipeline(boot.Params{
		Config:   cfg,
		Provider: boot.ManifestDirProvider{Dir: os.Args[1]},
		Logger:   logger,
	})
	if err != nil {
		logger.Error("pipeline construction failed", "err", err)
		os.Exit(1)
	}

	bc := boot.NewContext(logger)
	report, err := pipeline.Boot(context.Background(), bc)
	if err != nil {
		logger.Error("boot aborted", "err", err)
		os.Exit(1)
	}

	snapshot, err := bc.Snapshot()
	if err != nil {
		logger.Error("capability tree export failed", "err", err)
		os.Exit(1)
	}
	tree, err := snapshot.CanonicalJSON()
	if err != nil {
		logger.Error("capability tree export failed", "err", err)
		os.Exit(1)
	}

	summary := map[string]any{
		"run_id":             report.RunID,
		"enabled":            len(report.Enabled),
		"rejected":           len(report.Rejected),
		"warnings":           len(report.Warnings),
		"registration_order": report.RegistrationOrder,
		"lifecycle":          report.Lifecycle,
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	fmt.Println(string(tree))
}
