package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/i5heu/qrtile"
	"github.com/i5heu/qrtile/pkg/apiServer"
)

const shutdownTimeout = 10 * time.Second

// readInput reads a file argument, or stdin for "-" or no argument.
func (c *cli) readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cli) encodeCmd() *cobra.Command { // A
	var (
		output      string
		chunkSize   int
		passphrase  string
		compression string
		noLabels    bool
	)
	cmd := &cobra.Command{
		Use:   "encode [file|-]",
		Short: "Encode a text file (or stdin) into a tiled QR PNG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := c.readInput(args)
			if err != nil {
				return err
			}
			codec, err := c.openCodec()
			if err != nil {
				return err
			}

			opts := qrtile.EncodeOptions{
				ChunkSize:   chunkSize,
				Passphrase:  c.passphrase(passphrase),
				Compression: compression,
			}
			if noLabels {
				labels := false
				opts.Labels = &labels
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			enc, err := codec.EncodePNG(cmd.Context(), f, text, opts)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}

			c.logger.Debug("wrote sheet",
				logKeyOutput, output,
				logKeyMessageID, enc.MessageID,
				logKeyTotalChunks, enc.TotalChunks)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d chunks\t%dx%d grid\tsha256 %s\n",
				enc.MessageID, enc.TotalChunks, enc.Sheet.Grid.Columns, enc.Sheet.Grid.Rows, enc.Digest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "multi_qr.png", "output PNG path")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "fragment data size in bytes (default from config)")
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "encrypt with this passphrase (or set "+passphraseEnv+")")
	cmd.Flags().StringVar(&compression, "compression", "", "none, zstd or xz (default from config)")
	cmd.Flags().BoolVar(&noLabels, "no-labels", false, "omit the index label under each tile")
	return cmd
}

func (c *cli) decodeCmd() *cobra.Command { // A
	var (
		output     string
		passphrase string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "decode <image.png>",
		Short: "Decode a tiled QR PNG back into text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := c.openCodec()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			dec, err := codec.DecodePNG(cmd.Context(), f, qrtile.DecodeOptions{Passphrase: c.passphrase(passphrase)})
			if err != nil {
				return err
			}
			c.logger.Debug("decoded sheet",
				logKeyInput, args[0],
				logKeyMessageID, dec.MessageID,
				logKeyTotalChunks, dec.TotalChunks)

			if output == "" {
				return writeDecoded(cmd.OutOrStdout(), dec, asJSON)
			}
			of, err := os.Create(output)
			if err != nil {
				return err
			}
			err = writeDecoded(of, dec, asJSON)
			if cerr := of.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the text here instead of stdout")
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "decryption passphrase (or set "+passphraseEnv+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print text and metadata as json")
	return cmd
}

func writeDecoded(w io.Writer, dec *qrtile.Decoded, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(w, dec.Text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"data":         dec.Text,
		"sha256":       dec.Digest,
		"message_id":   dec.MessageID,
		"total_chunks": dec.TotalChunks,
		"encrypted":    dec.Encrypted,
		"compression":  dec.Compression,
		"issued_here":  dec.Issued != nil,
	})
}

func (c *cli) estimateCmd() *cobra.Command { // A
	var (
		chunkSize   int
		length      int
		compression string
		encrypted   bool
	)
	cmd := &cobra.Command{
		Use:   "estimate [file|-]",
		Short: "Predict how many tiles a text needs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := c.openCodec()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("length") {
				est, err := codec.EstimateLength(length, chunkSize, encrypted)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), est.TotalChunks)
				return nil
			}

			text, err := c.readInput(args)
			if err != nil {
				return err
			}
			opts := qrtile.EncodeOptions{ChunkSize: chunkSize, Compression: compression}
			if encrypted {
				// only the length of the sealed payload matters
				opts.Passphrase = "estimate"
			}
			est, err := codec.Estimate(text, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), est.TotalChunks)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "fragment data size in bytes (default from config)")
	cmd.Flags().IntVar(&length, "length", 0, "estimate for an ASCII text of this many bytes instead of reading input")
	cmd.Flags().StringVar(&compression, "compression", "", "none, zstd or xz (default from config)")
	cmd.Flags().BoolVar(&encrypted, "encrypted", false, "account for encryption")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command { // A
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the encode/decode HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				c.config.Listen = listen
			}
			codec, err := c.openCodec()
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", c.config.Listen)
			if err != nil {
				return err
			}
			return c.serve(cmd.Context(), ln, apiServer.New(codec, apiServer.WithLogger(c.logger)))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

// serve runs handler on ln until ctx is done, then shuts down gracefully.
func (c *cli) serve(ctx context.Context, ln net.Listener, handler http.Handler) error { // A
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	c.logger.Info("serving http api", logKeyListenAddr, ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down http api", logKeySignal, context.Cause(ctx))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *cli) historyCmd() *cobra.Command { // A
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List message ids issued by this installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.config.LedgerPath == "" {
				return errors.New("history needs ledgerPath in the config file")
			}
			codec, err := c.openCodec()
			if err != nil {
				return err
			}
			entries, err := codec.History(limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tMESSAGE ID\tCHUNKS\tCHUNK SIZE\tENCRYPTED\tCOMPRESSION\tSHA256")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.MessageID, e.TotalChunks,
					e.ChunkSize, e.Encrypted, e.Compression, e.Digest)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show, 0 for all")
	return cmd
}
