package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"leaf-disease-service/internal/adapters/primary/http/dto"
	"leaf-disease-service/internal/app"
	"leaf-disease-service/internal/config"
	"leaf-disease-service/internal/core/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("leafctl: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var demo bool

	rootCmd := &cobra.Command{
		Use:           "leafctl",
		Short:         "cassava leaf disease classifier tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&demo, "demo", false, "force demo mode regardless of INFERENCE_MODE")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "download and verify the model artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Classifier.EnsureModel(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.ToModelStatusResponse(st))
		},
	}

	classifyCmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "classify one or more leaf photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), demo)
			if err != nil {
				return err
			}
			defer a.Close()

			var failed int
			for _, path := range args {
				if err := classifyFile(cmd.Context(), a, path, cmd.OutOrStdout()); err != nil {
					log.WithError(err).WithField("file", path).Error("classify failed")
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}

	labelsCmd := &cobra.Command{
		Use:   "labels",
		Short: "list the classifier labels in score order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, l := range domain.Labels {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, l)
			}
			return nil
		},
	}

	rootCmd.AddCommand(fetchCmd, classifyCmd, labelsCmd)
	return rootCmd
}

func build(ctx context.Context, demo bool) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if demo {
		cfg.Inference.Mode = config.ModeDemo
	}
	cfg.Logger.Format = "text"
	app.InitLogger(cfg)
	log.SetOutput(os.Stderr)

	return app.New(ctx, cfg)
}

type fileResult struct {
	File string `json:"file"`
	dto.ClassificationResponse
}

func classifyFile(ctx context.Context, a *app.App, path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	result, err := a.Classifier.Classify(ctx, data)
	if err != nil {
		return err
	}

	var disease *domain.DiseaseRecord
	if record, err := a.Classifier.Disease(result.Label); err == nil {
		disease = &record
	}
	return printJSON(w, fileResult{File: path, ClassificationResponse: dto.ToClassificationResponse(result, disease)})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
