package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/wekeo-mosaic/internal/pipeline"
)

func runCmd(a *app) *cobra.Command {
	var dataset string
	var shape string
	var start string
	var end string
	var products []string
	var workDir string
	var user string
	var password string
	var quiet bool
	var format string

	c := &cobra.Command{
		Use:   "run",
		Short: "Fetch tiles for an area of interest, then filter, group, composite and clean",
		Example: `  wekeo-mosaic run -d VPP_Index -s doñana.geojson --start 2023-06-01 --end 2023-06-30 -p NDVI,LAI
  wekeo-mosaic run -d VPP_Pheno -s deimsid:https://deims.org/bcbc866c-3f4f-47a8-bbbc-0a93df6de7b2 --start 2020-01-01 --end 2020-12-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			datasetID, err := a.datasets.Resolve(dataset)
			if err != nil {
				return err
			}
			if unknown := a.datasets.UnknownProducts(dataset, products); len(unknown) > 0 {
				a.logger.Warn("products not listed for dataset", "dataset", dataset, "products", unknown)
			}

			if workDir == "" {
				workDir = a.cfg.Pipeline.WorkDir
			}
			req := pipeline.Request{
				Shape:     shape,
				DatasetID: datasetID,
				Products:  products,
				Start:     start,
				End:       end,
				WorkDir:   workDir,
			}
			if err := req.Validate(); err != nil {
				return err
			}

			creds, err := resolveCredentials(a.cfg.WEkEO, user, password)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := a.newPipeline(&creds, quiet || a.cfg.Pipeline.Quiet)
			rep, runErr := p.Run(ctx, req)
			if err := printReport(cmd.OutOrStdout(), rep, format); err != nil {
				return err
			}
			return runErr
		},
	}

	c.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset alias (VPP_Index, VPP_ST, VPP_Pheno, SLSTR) or raw HDA dataset id (required)")
	c.Flags().StringVarP(&shape, "shape", "s", "", "Vector file or deimsid:<site> reference (required)")
	c.Flags().StringVar(&start, "start", "", "First acquisition date, YYYY-MM-DD (required)")
	c.Flags().StringVar(&end, "end", "", "Last acquisition date, YYYY-MM-DD (required)")
	c.Flags().StringSliceVarP(&products, "products", "p", nil, "Product types to fetch, in order (default: whole dataset)")
	c.Flags().StringVarP(&workDir, "workdir", "w", "", "Working directory (default: PIPELINE_WORK_DIR)")
	c.Flags().StringVar(&user, "user", "", "HDA user (default: WEKEO_USER or ~/.hdarc)")
	c.Flags().StringVar(&password, "password", "", "HDA password (default: WEKEO_PASSWORD or ~/.hdarc)")
	c.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide download progress bars")
	c.Flags().StringVar(&format, "format", "pretty", "Report format: pretty|json")

	_ = c.MarkFlagRequired("dataset")
	_ = c.MarkFlagRequired("shape")
	_ = c.MarkFlagRequired("start")
	_ = c.MarkFlagRequired("end")
	return c
}

func compositeCmd(a *app) *cobra.Command {
	var dataset string
	var shape string
	var workDir string
	var format string

	c := &cobra.Command{
		Use:   "composite",
		Short: "Filter, group, composite and clean tiles already present in a working directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var datasetID string
			if dataset != "" {
				id, err := a.datasets.Resolve(dataset)
				if err != nil {
					return err
				}
				datasetID = id
			}
			if workDir == "" {
				workDir = a.cfg.Pipeline.WorkDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := a.newPipeline(nil, true)
			rep, runErr := p.Composite(ctx, shape, workDir, datasetID)
			if err := printReport(cmd.OutOrStdout(), rep, format); err != nil {
				return err
			}
			return runErr
		},
	}

	c.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset alias or HDA id the tiles came from, recorded in the outputs")
	c.Flags().StringVarP(&shape, "shape", "s", "", "Vector file or deimsid:<site> reference (required)")
	c.Flags().StringVarP(&workDir, "workdir", "w", "", "Working directory (default: PIPELINE_WORK_DIR)")
	c.Flags().StringVar(&format, "format", "pretty", "Report format: pretty|json")

	_ = c.MarkFlagRequired("shape")
	return c
}
