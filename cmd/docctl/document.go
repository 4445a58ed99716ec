package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/gezibash/docio/internal/cli"
	"github.com/gezibash/docio/pkg/client"
	"github.com/gezibash/docio/pkg/format"
	"github.com/gezibash/docio/pkg/handle"
	"github.com/gezibash/docio/pkg/transaction"
	"github.com/gezibash/docio/pkg/transform"
	"github.com/gezibash/docio/pkg/transform/cel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// putOptions selects how a document is sent.
type putOptions struct {
	format    format.Format
	mimetype  string
	normalize bool
	program   *cel.Program
}

func newPutCmd(v *viper.Viper) *cobra.Command {
	var (
		formatName string
		mimetype   string
		txid       string
		normalize  bool
		celExpr    string
	)

	cmd := &cobra.Command{
		Use:   "put <uri> [file]",
		Short: "Store a document read from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			path := "-"
			if len(args) == 2 {
				path = args[1]
			}

			f, err := resolveFormat(formatName, mimetype, path)
			if err != nil {
				return err
			}
			opts := putOptions{format: f, mimetype: mimetype, normalize: normalize}
			if normalize && f != format.XML {
				return fmt.Errorf("--normalize applies to xml documents, not %s", f)
			}
			if celExpr != "" {
				if f != format.JSON {
					return fmt.Errorf("--cel applies to json documents, not %s", f)
				}
				if opts.program, err = cel.Compile(celExpr); err != nil {
					return err
				}
			}

			src, closeSrc, err := openInput(cmd, path)
			if err != nil {
				return err
			}
			defer closeSrc()

			return cli.RunCommand(cmd.Context(), cli.CommandConfig{
				Name:  "put",
				Cmd:   cmd,
				Viper: v,
				Run: func(ctx context.Context, c *client.Client, out *cli.Output) error {
					if err := putDocument(ctx, c, uri, src, opts, callOptions(c, txid)...); err != nil {
						return fmt.Errorf("put %s: %w", uri, err)
					}
					res := out.Result("put", "document stored").
						With("uri", uri).
						With("format", f.String())
					if txid != "" {
						res.With("transaction", txid)
					}
					return res.Render()
				},
			})
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "", "document format: xml, json, text or binary (default: from mimetype or file extension)")
	cmd.Flags().StringVar(&mimetype, "mimetype", "", "document mimetype (default: format default)")
	cmd.Flags().StringVar(&txid, "txid", "", "write inside an open transaction")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "re-encode xml markup as UTF-8 before storing")
	cmd.Flags().StringVar(&celExpr, "cel", "", "CEL expression applied to a json document before storing; the document is bound to doc")
	return cmd
}

func newGetCmd(v *viper.Viper) *cobra.Command {
	var (
		txid    string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "get <uri>",
		Short: "Print a document, or save it to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			return cli.RunCommand(cmd.Context(), cli.CommandConfig{
				Name:  "get",
				Cmd:   cmd,
				Viper: v,
				Run: func(ctx context.Context, c *client.Client, out *cli.Output) error {
					h := handle.NewStream(nil)
					if err := c.Binary().Read(ctx, uri, h, callOptions(c, txid)...); err != nil {
						return fmt.Errorf("get %s: %w", uri, err)
					}
					defer func() { _ = h.Close() }()

					if outFile == "" {
						_, err := io.Copy(out.Writer(), h.Get())
						return err
					}

					f, err := os.Create(filepath.Clean(outFile))
					if err != nil {
						return err
					}
					n, err := io.Copy(f, h.Get())
					if cerr := f.Close(); err == nil {
						err = cerr
					}
					if err != nil {
						return err
					}
					return out.KV("document").
						Set("URI", uri).
						Set("Mimetype", h.Mimetype()).
						Set("Bytes", n).
						Set("File", outFile).
						Render()
				},
			})
		},
	}

	cmd.Flags().StringVar(&txid, "txid", "", "read inside an open transaction")
	cmd.Flags().StringVarP(&outFile, "file", "f", "", "write the document to this file instead of stdout")
	return cmd
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	var txid string

	cmd := &cobra.Command{
		Use:   "delete <uri>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			return cli.RunCommand(cmd.Context(), cli.CommandConfig{
				Name:  "delete",
				Cmd:   cmd,
				Viper: v,
				Run: func(ctx context.Context, c *client.Client, out *cli.Output) error {
					if err := c.Binary().Delete(ctx, uri, callOptions(c, txid)...); err != nil {
						return fmt.Errorf("delete %s: %w", uri, err)
					}
					res := out.Result("delete", "document deleted").With("uri", uri)
					if txid != "" {
						res.With("transaction", txid)
					}
					return res.Render()
				},
			})
		},
	}

	cmd.Flags().StringVar(&txid, "txid", "", "delete inside an open transaction")
	return cmd
}

// putDocument writes src through the document manager for opts.format.
func putDocument(ctx context.Context, c *client.Client, uri string, src io.Reader, opts putOptions, call ...client.CallOption) error {
	switch opts.format {
	case format.XML:
		if opts.normalize {
			h := handle.NewSource(src)
			h.SetTransformer(transform.Identity())
			h.SetMimetype(opts.mimetype)
			return c.XML().Write(ctx, uri, h, call...)
		}
		return c.XML().Write(ctx, uri, streamHandle(src, opts.mimetype), call...)
	case format.JSON:
		if opts.program != nil {
			data, err := io.ReadAll(src)
			if err != nil {
				return err
			}
			h := handle.NewJSON()
			h.ReceiveContent(data)
			h.SetTransformer(opts.program)
			h.SetMimetype(opts.mimetype)
			return c.JSON().Write(ctx, uri, h, call...)
		}
		return c.JSON().Write(ctx, uri, streamHandle(src, opts.mimetype), call...)
	case format.Text:
		return c.Text().Write(ctx, uri, streamHandle(src, opts.mimetype), call...)
	default:
		return c.Binary().Write(ctx, uri, streamHandle(src, opts.mimetype), call...)
	}
}

func streamHandle(src io.Reader, mimetype string) *handle.StreamHandle {
	h := handle.NewStream(src)
	h.SetMimetype(mimetype)
	return h
}

// resolveFormat picks the document format from the flag, then the
// mimetype, then the file extension. Anything unrecognized is binary.
func resolveFormat(name, mimetype, path string) (format.Format, error) {
	f, err := format.Parse(name)
	if err != nil {
		return format.Unknown, err
	}
	if f == format.Unknown && mimetype != "" {
		f = format.FromMimetype(mimetype)
	}
	if f == format.Unknown && path != "-" {
		f = format.FromMimetype(mime.TypeByExtension(filepath.Ext(path)))
	}
	if f == format.Unknown {
		f = format.Binary
	}
	return f, nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func callOptions(c *client.Client, txid string) []client.CallOption {
	if txid == "" {
		return nil
	}
	return []client.CallOption{client.WithTransaction(transaction.New(c.Remote(), txid))}
}
