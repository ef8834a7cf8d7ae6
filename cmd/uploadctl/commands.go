package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/maneesh/voicehub/internal/logging"
	"github.com/maneesh/voicehub/internal/models"
	"github.com/maneesh/voicehub/internal/uploader"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

type rootOptions struct {
	api     string
	token   string
	verbose bool
}

func (o *rootOptions) client() *uploader.Client {
	return uploader.NewClient(o.api, o.token, nil)
}

// NewRootCommand creates the uploadctl command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "uploadctl",
		Short:         "Upload files to VoiceHub storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logging.Setup(os.Stderr, level)
		},
	}

	root.PersistentFlags().StringVar(&opts.api, "api", envOr("VOICEHUB_API", "http://localhost:8080"), "upload service base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("VOICEHUB_TOKEN"), "bearer token")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log retries and session events")

	root.AddCommand(newPutCommand(opts), newAbortCommand(opts), newRemoveCommand(opts), newListCommand(opts))
	return root
}

func newPutCommand(opts *rootOptions) *cobra.Command {
	var (
		category    string
		contentType string
		concurrency int
		chunkSizeMB int
	)

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			name := filepath.Base(args[0])
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(name))
			}
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			cat, err := models.ParseCategory(category)
			if err != nil {
				return err
			}

			ctx, token, stop := interruptible(cmd.Context(), cmd.ErrOrStderr())
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%d bytes, %s)\n", cyan("uploading"), name, info.Size(), contentType)

			res, err := uploader.New(opts.client(), nil).Upload(ctx, f, info.Size(), uploader.Options{
				FileName:    name,
				ContentType: contentType,
				Category:    cat,
				Concurrency: concurrency,
				ChunkSize:   int64(chunkSizeMB) * 1024 * 1024,
				Retry:       uploader.DefaultRetryPolicy(),
				Cancel:      token,
				Progress: func(p int) {
					fmt.Fprintf(out, "\r  %s %3d%%", gray("progress"), p)
				},
			})
			fmt.Fprintln(out)

			if res != nil && res.Status == uploader.StatusCancelled {
				fmt.Fprintln(out, yellow("upload cancelled"))
				return nil
			}
			if err != nil {
				if res != nil && res.Status == uploader.StatusUploaded {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s finalize failed, abort with: uploadctl abort --upload-id %s --key %s\n",
						yellow("warning:"), res.UploadID, res.Key)
				}
				return err
			}

			fmt.Fprintf(out, "%s %s\n  key %s\n", green("stored"), res.URL, gray(res.Key))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", string(models.CategoryGeneral), "file category (cover, reference-audio, demo-audio, model-file, dataset-file, general)")
	cmd.Flags().StringVar(&contentType, "type", "", "content type, guessed from the extension when empty")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "parallel part uploads")
	cmd.Flags().IntVar(&chunkSizeMB, "chunk-size-mb", 5, "part size in MB, at least the server's CHUNK_SIZE_MB")
	return cmd
}

func newAbortCommand(opts *rootOptions) *cobra.Command {
	var uploadID, key string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort a multipart upload session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Abort(cmd.Context(), models.AbortRequest{UploadID: uploadID, Key: key}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("aborted"), uploadID)
			return nil
		},
	}

	cmd.Flags().StringVar(&uploadID, "upload-id", "", "upload session id")
	cmd.Flags().StringVar(&key, "key", "", "object key")
	_ = cmd.MarkFlagRequired("upload-id")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteObject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("deleted"), args[0])
			return nil
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List your stored objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			objects, err := opts.client().ListObjects(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCATEGORY\tSIZE\tCREATED")
			for _, o := range objects {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", o.Key, o.Category, o.Size, o.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum objects to list")
	return cmd
}

// interruptible cancels the upload token on the first Ctrl-C and the
// context on the second.
func interruptible(parent context.Context, w io.Writer) (context.Context, *uploader.CancelToken, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	token := uploader.NewCancelToken()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sig:
			fmt.Fprintln(w, yellow("\ncancelling after the current part, press Ctrl-C again to stop now"))
			token.Cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, token, func() {
		signal.Stop(sig)
		cancel()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
