package main

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"derivdiff/internal/blob"
	"derivdiff/internal/config"
	"derivdiff/internal/forge"
	"derivdiff/internal/harness"
	"derivdiff/internal/imagediff"
	"derivdiff/internal/snapshot"
	"derivdiff/internal/validate"
)

// Run modes, as recorded in reports.
const (
	modeCompare = "compare"
	modeUpdate  = "update"
)

func (a *app) runCmd() *cobra.Command {
	var update bool
	cmd := &cobra.Command{
		Use:   "run <bucket> <object>",
		Short: "Compare the derivatives of an uploaded model with its baseline",
		Args:  positional(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs validate.Errors
			errs.Merge(a.cfg.CheckForge())
			errs.Merge(a.cfg.CheckStore())
			if err := errs.Err(); err != nil {
				return usage(err)
			}
			ctx := cmd.Context()
			h, err := a.harness(ctx)
			if err != nil {
				return err
			}
			mode := modeCompare
			if update {
				mode = modeUpdate
			}
			bucket, object := args[0], args[1]
			return a.finish(harness.TestName(bucket, object), mode, h.Run(ctx, bucket, object, update))
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "replace the baseline with the current derivatives")
	return cmd
}

func (a *app) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <baselineDir> <currentDir>",
		Short: "Compare two local derivative trees",
		Args:  positional(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs validate.Errors
			errs.Merge(validate.Dir("baseline directory", args[0]))
			errs.Merge(validate.Dir("current directory", args[1]))
			if err := errs.Err(); err != nil {
				return usage(err)
			}
			h := &harness.Harness{Metrics: a.metrics, Logger: a.logger, Threshold: a.cfg.ImageThreshold}
			test := args[0] + " vs " + args[1]
			err := a.metrics.Step(test, harness.StepCompare, func() error {
				return h.Compare(args[0], args[1])
			})
			a.metrics.Finish(test, err)
			if err == nil {
				fmt.Fprintln(a.stdout, "no differences")
			}
			return a.finish(test, modeCompare, err)
		},
	}
}

func (a *app) baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Download or upload a stored baseline",
	}
	transfer := func(use, short string, fn func(s *snapshot.Store, ctx context.Context, test, dir string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <testName> <dir>",
			Short: short,
			Args:  positional(cobra.ExactArgs(2)),
			RunE: func(cmd *cobra.Command, args []string) error {
				var errs validate.Errors
				errs.Merge(validate.TestName(args[0]))
				errs.Merge(a.cfg.CheckStore())
				if err := errs.Err(); err != nil {
					return usage(err)
				}
				s, err := a.snapshots(cmd.Context())
				if err != nil {
					return err
				}
				return fn(s, cmd.Context(), args[0], args[1])
			},
		}
	}
	cmd.AddCommand(
		transfer("download", "Extract a stored baseline into a directory", (*snapshot.Store).Download),
		transfer("upload", "Store a directory as the baseline", (*snapshot.Store).Upload),
	)
	return cmd
}

func (a *app) imagesCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "images <a> <b>",
		Short: "Compare two raster images",
		Args:  positional(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.ImageThreshold
			}
			if err := validate.Threshold(threshold); err != nil {
				return usage(err)
			}
			if err := imagediff.CompareImages(args[0], args[1], threshold); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "images match")
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", imagediff.DefaultThreshold, "per-pixel tolerance in [0,1]")
	return cmd
}

func (a *app) harness(ctx context.Context) (*harness.Harness, error) {
	snapshots, err := a.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	client := forge.NewClient(ctx,
		forge.Credentials{ClientID: a.cfg.ForgeClientID, ClientSecret: a.cfg.ForgeClientSecret},
		forge.WithBaseURL(a.cfg.ForgeBaseURL))
	return &harness.Harness{
		Snapshots: snapshots,
		Extractor: &forge.Extractor{Client: client, Logger: a.logger},
		Metrics:   a.metrics,
		Logger:    a.logger,
		WorkDir:   a.cfg.WorkDir,
		Threshold: a.cfg.ImageThreshold,
	}, nil
}

func (a *app) snapshots(ctx context.Context) (*snapshot.Store, error) {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	opts := []snapshot.Option{snapshot.WithLogger(a.logger)}
	if a.cfg.Progress {
		opts = append(opts, snapshot.WithProgress(a.stderr))
	}
	return snapshot.New(blobs, opts...), nil
}

func (a *app) blobStore(ctx context.Context) (blob.Store, error) {
	c := a.cfg
	level.Debug(a.logger).Log("msg", "opening blob store", "backend", c.BlobBackend)
	switch c.BlobBackend {
	case config.BackendFile:
		return blob.NewLocalStore(c.BlobFileRoot), nil
	case config.BackendMinio:
		return blob.NewMinioStore(blob.MinioOptions{
			Endpoint:        c.S3Endpoint,
			Bucket:          c.Bucket,
			Region:          c.AWSRegion,
			AccessKeyID:     c.AWSAccessKeyID,
			SecretAccessKey: c.AWSSecretAccessKey,
			Secure:          c.MinioSecure,
		})
	default:
		return blob.NewS3Store(ctx, blob.S3Options{
			Bucket:          c.Bucket,
			Region:          c.AWSRegion,
			AccessKeyID:     c.AWSAccessKeyID,
			SecretAccessKey: c.AWSSecretAccessKey,
			Endpoint:        c.S3Endpoint,
			PathStyle:       c.S3PathStyle,
		})
	}
}
