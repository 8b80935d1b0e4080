// Command imagefilter is the operator CLI. It talks to the same database and
// queue as the server and worker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/imagefilter/internal/app"
	"github.com/dharsanguruparan/imagefilter/internal/config"
	"github.com/dharsanguruparan/imagefilter/internal/database"
	"github.com/dharsanguruparan/imagefilter/internal/logging"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/spreadsheet"
)

var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "imagefilter: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagefilter",
		Short: "Operate the spreadsheet image filter",
		Long: `imagefilter uploads product spreadsheets, drives them through validation,
classification and generation, and lets operators review and override image types.
Connection settings come from the same IMAGEFILTER_* environment as the server.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for pipeline output")
	cmd.AddCommand(
		newMigrateCmd(),
		newUploadCmd(),
		newActionCmd("validate", "Validate an uploaded spreadsheet", (*pipeline.Pipeline).RequestValidate),
		newActionCmd("classify", "Classify the images of a registered spreadsheet", (*pipeline.Pipeline).RequestClassify),
		newActionCmd("generate", "Generate the filtered spreadsheet", (*pipeline.Pipeline).RequestGenerate),
		newActionCmd("delete", "Delete a spreadsheet and everything extracted from it", (*pipeline.Pipeline).RequestDelete),
		newOverrideCmd(),
		newStatusCmd(),
		newProductsCmd(),
		newImagesCmd(),
		newDownloadCmd(),
		newTemplateCmd(),
		newRunCmd(),
	)
	return cmd
}

// withApp loads the config and builds the pipeline for one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.NewWithWriter(os.Stderr, logLevel, "console", "cli")
	if cfg.StoreMode == config.StoreMemory {
		log.Warn().Msg("memory store selected; state is lost when the command exits")
	}
	a, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.NewWithWriter(os.Stderr, logLevel, "console", "cli")
			return database.Migrate(cfg.DatabaseURL, log)
		},
	}
}

func newUploadCmd() *cobra.Command {
	var title, owner string
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a product spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				fh, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer fh.Close()
				info, err := fh.Stat()
				if err != nil {
					return err
				}
				f, err := a.Pipeline.Upload(ctx, pipeline.UploadRequest{
					Owner: owner,
					Title: title,
					Name:  info.Name(),
					Size:  info.Size(),
					Body:  fh,
				})
				if err != nil {
					return fmt.Errorf("%s", pipeline.Message(err))
				}
				return printJSON(cmd, f)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Display title (defaults to the file name)")
	cmd.Flags().StringVar(&owner, "owner", "", "Owning user")
	return cmd
}

type action func(p *pipeline.Pipeline, ctx context.Context, fileID string) pipeline.Result

func newActionCmd(use, short string, run action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <file-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printResult(cmd, run(a.Pipeline, ctx, args[0]))
			})
		},
	}
}

func newOverrideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "override <image-id> <excluded|included>",
		Short: "Override the classification of one image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseImageType(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printResult(cmd, a.Pipeline.OverrideImageType(ctx, args[0], to))
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <file-id>",
		Short: "Show a spreadsheet and its image counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				f, err := a.Pipeline.File(ctx, args[0], "")
				if err != nil {
					return fmt.Errorf("%s", pipeline.Message(err))
				}
				summary, err := a.Pipeline.Summary(ctx, f.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd, struct {
					File    interface{}      `json:"file"`
					Summary pipeline.Summary `json:"summary"`
				}{f, summary})
			})
		},
	}
}

func newProductsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products <file-id>",
		Short: "List extracted products with their image counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				products, err := a.Pipeline.ProductSummaries(ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s", pipeline.Message(err))
				}
				return printJSON(cmd, products)
			})
		},
	}
}

func newImagesCmd() *cobra.Command {
	var product string
	var types []string
	cmd := &cobra.Command{
		Use:   "images <file-id>",
		Short: "List images, optionally filtered by product and type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := imageQuery(args[0], product, types)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				images, err := a.Pipeline.Images(ctx, q)
				if err != nil {
					return fmt.Errorf("%s", pipeline.Message(err))
				}
				return printJSON(cmd, images)
			})
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "Only images of this product id")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Only images of these types (repeatable)")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var output string
	var urlOnly bool
	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Fetch the generated spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if urlOnly {
					url, err := a.Pipeline.GeneratedURL(ctx, args[0])
					if err != nil {
						return fmt.Errorf("%s", pipeline.Message(err))
					}
					fmt.Fprintln(cmd.OutOrStdout(), url)
					return nil
				}
				data, name, err := a.Pipeline.GeneratedFile(ctx, args[0])
				if err != nil {
					return fmt.Errorf("%s", pipeline.Message(err))
				}
				if output == "" {
					output = name
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (defaults to the generated file name)")
	cmd.Flags().BoolVar(&urlOnly, "url", false, "Print a time-limited download URL instead")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty spreadsheet with the configured columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema, err := app.Schema(cfg)
			if err != nil {
				return err
			}
			data, err := spreadsheet.Write(schema.Sheet, schema.Header(), nil)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (schema v%d, %d columns)\n", output, schema.Version, len(schema.Columns))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "products.xlsx", "Destination path")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the service binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := append([]string{"run", path}, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}

func printResult(cmd *cobra.Command, res pipeline.Result) error {
	if !res.OK {
		return fmt.Errorf("%s", res.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
