package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Napageneral/onboard/internal/config"
	"github.com/Napageneral/onboard/internal/db"
	"github.com/Napageneral/onboard/internal/documents"
	"github.com/Napageneral/onboard/internal/drive"
	"github.com/Napageneral/onboard/internal/poller"
	"github.com/Napageneral/onboard/internal/relay"
	"github.com/Napageneral/onboard/internal/secrets"
	"github.com/Napageneral/onboard/internal/server"
	"github.com/Napageneral/onboard/internal/telegram"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func mustApp() *app {
	a, err := newApp()
	if err != nil {
		fail(err.Error())
	}
	return a
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize onboard config and database",
		Run: func(cmd *cobra.Command, args []string) {
			configDir, err := config.GetConfigDir()
			if err != nil {
				fail(fmt.Sprintf("Failed to get config directory: %v", err))
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				fail(fmt.Sprintf("Failed to create config directory: %v", err))
			}
			cfg, err := loadConfig()
			if err != nil {
				fail(err.Error())
			}
			if err := db.Init(cfg.Database.Path); err != nil {
				fail(fmt.Sprintf("Failed to initialize database: %v", err))
			}

			data := map[string]string{"config_dir": configDir, "db_path": cfg.Database.Path}
			succeed("Onboard initialized successfully", data, func() {
				fmt.Printf("✓ Config directory: %s\n", configDir)
				fmt.Printf("✓ Database: %s\n", cfg.Database.Path)
				fmt.Println("\nOnboard initialized successfully!")
			})
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key for ENCRYPTION_KEY",
		Run: func(cmd *cobra.Command, args []string) {
			key, err := secrets.GenerateKey()
			if err != nil {
				fail(err.Error())
			}
			succeed("generated key", map[string]string{"key": key}, func() { fmt.Println(key) })
		},
	}
}

func newClientCmd() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Manage clients and their assistants",
	}

	addCmd := &cobra.Command{
		Use:   "add <client-id> <api-key>",
		Short: "Register a client and create its assistant",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			p, err := a.provisioner()
			if err != nil {
				fail(err.Error())
			}
			sum, err := p.Provision(cmd.Context(), args[0], args[1])
			if err != nil {
				fail(err.Error())
			}
			succeed("client registered", sum, func() {
				fmt.Printf("✓ Client %s registered with assistant %s\n", sum.ClientID, sum.AssistantID)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			list, err := a.clients.ListClients(cmd.Context())
			if err != nil {
				fail(err.Error())
			}
			succeed("", list, func() {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CLIENT\tASSISTANT\tCREATED")
				for _, c := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ClientID, c.AssistantID, c.CreatedAt.Format(time.RFC3339))
				}
				tw.Flush()
			})
		},
	}

	clientCmd.AddCommand(addCmd, listCmd)
	return clientCmd
}

func newDriveCmd() *cobra.Command {
	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "Google Drive authorization and watched documents",
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only Drive access and save the token",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				fail(err.Error())
			}
			oc, err := drive.LoadOAuthConfig(cfg.Drive.CredentialsFile)
			if err != nil {
				fail(err.Error())
			}
			if _, err := drive.Authorize(cmd.Context(), oc, cfg.Drive.TokenFile, os.Stdin, os.Stderr); err != nil {
				fail(err.Error())
			}
			succeed("Drive token saved to "+cfg.Drive.TokenFile, nil, nil)
		},
	}

	var registerClient string
	registerCmd := &cobra.Command{
		Use:   "register <url-or-file-id>",
		Short: "Watch a Drive document for a client",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			clientID, err := a.clientID(registerClient, a.cfg.Drive.ClientID)
			if err != nil {
				fail(err.Error())
			}
			fileID := drive.ResolveFileID(args[0])
			if fileID == "" {
				fail("could not find a Drive file id in " + args[0])
			}
			src, err := a.driveSource(cmd.Context())
			if err != nil {
				fail(err.Error())
			}
			meta, err := src.Metadata(cmd.Context(), fileID)
			if err != nil {
				fail(err.Error())
			}
			res, err := a.docs.Register(cmd.Context(), fileID, clientID, meta.Name, meta.ModifiedTime)
			if err != nil {
				fail(err.Error())
			}
			succeed("document registered", res, func() {
				if res.Created {
					fmt.Printf("✓ Watching %q (%s) for %s\n", meta.Name, fileID, clientID)
				} else {
					fmt.Printf("Already watching %q (%s): %s\n", meta.Name, fileID, res.Reason)
				}
			})
		},
	}
	registerCmd.Flags().StringVar(&registerClient, "client", "", "Client id (defaults to drive.client_id)")

	var listClient string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List watched documents",
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			docs, err := a.docs.List(cmd.Context(), listClient)
			if err != nil {
				fail(err.Error())
			}
			succeed("", docs, func() {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FILE ID\tCLIENT\tNAME\tLAST MODIFIED\tHASH")
				for _, d := range docs {
					hash := d.ContentHash
					if len(hash) > 12 {
						hash = hash[:12]
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.FileID, d.ClientID, d.FileName, d.LastModified, hash)
				}
				tw.Flush()
			})
		},
	}
	listCmd.Flags().StringVar(&listClient, "client", "", "Only documents of this client")

	driveCmd.AddCommand(authCmd, registerCmd, listCmd)
	return driveCmd
}

// watchedFileIDs merges configured ids with the documents registered for clientID.
func watchedFileIDs(ctx context.Context, a *app, clientID string) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, id := range a.cfg.Drive.FileIDs {
		id = drive.ResolveFileID(id)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	docs, err := a.docs.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if !seen[d.FileID] {
			seen[d.FileID] = true
			ids = append(ids, d.FileID)
		}
	}
	return ids, nil
}

func newPollCmd() *cobra.Command {
	var (
		once      bool
		client    string
		assistant string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll watched Drive documents and forward changes",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signalContext()
			defer stop()

			a := mustApp()
			defer a.Close()
			clientID, err := a.clientID(client, a.cfg.Drive.ClientID)
			if err != nil {
				fail(err.Error())
			}
			ids, err := watchedFileIDs(ctx, a, clientID)
			if err != nil {
				fail(err.Error())
			}
			if len(ids) == 0 {
				fail("no documents to watch; set drive.file_ids or run `onboard drive register`")
			}
			src, err := a.driveSource(ctx)
			if err != nil {
				fail(err.Error())
			}
			if interval <= 0 {
				interval = a.cfg.Drive.PollInterval
			}

			p := &poller.Poller{
				Source:      src,
				Store:       a.docs,
				Forwarder:   a.fwd,
				FileIDs:     ids,
				ClientID:    clientID,
				AssistantID: assistant,
				Interval:    interval,
				Logger:      a.logger,
				Metrics:     a.metrics,
			}

			if once {
				report, err := p.RunCycle(ctx)
				if err != nil {
					fail(err.Error())
				}
				succeed("cycle complete", report, func() {
					for _, d := range report.Documents {
						line := fmt.Sprintf("%-10s %s", d.Outcome, d.FileID)
						if d.Reason != "" {
							line += " (" + d.Reason + ")"
						}
						fmt.Println(line)
					}
					fmt.Printf("\nforwarded=%d unchanged=%d skipped=%d failed=%d\n",
						report.Forwarded, report.Unchanged, report.Skipped, report.Failed)
				})
				return
			}
			if err := p.Run(ctx); err != nil {
				fail(err.Error())
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	cmd.Flags().StringVar(&client, "client", "", "Client id (defaults to drive.client_id)")
	cmd.Flags().StringVar(&assistant, "assistant", "", "Assistant id (defaults to the client's assistant)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Sleep between cycles (defaults to drive.poll_interval)")
	return cmd
}

// forwardAndRecord submits text and audits the submission.
func forwardAndRecord(ctx context.Context, a *app, clientID, assistantID, text, source, ref string) (relay.Reply, error) {
	reply, err := a.fwd.Submit(ctx, clientID, assistantID, text)
	if err != nil {
		return relay.Reply{}, err
	}
	if _, err := a.docs.RecordSubmission(ctx, documents.Submission{
		ClientID:    clientID,
		AssistantID: reply.AssistantID,
		Source:      source,
		Ref:         ref,
		ContentHash: documents.HashContent(text),
		Response:    reply.Content,
	}); err != nil {
		a.logger.Warn("record submission failed", "error", err)
	}
	return reply, nil
}

func newSendCmd() *cobra.Command {
	var assistant string
	cmd := &cobra.Command{
		Use:   "send <client-id> <message>",
		Short: "Send a message to a client's assistant with memory capture",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			reply, err := forwardAndRecord(cmd.Context(), a, args[0], assistant, strings.Join(args[1:], " "), "message", "")
			if err != nil {
				fail(err.Error())
			}
			succeed("", reply, func() { fmt.Println(reply.Content) })
		},
	}
	cmd.Flags().StringVar(&assistant, "assistant", "", "Assistant id (defaults to the client's assistant)")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <client-id>",
		Short: "Ask a client's assistant to summarize its memories",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			reply, err := forwardAndRecord(cmd.Context(), a, args[0], "", relay.SummarizePrompt, "summarize", "")
			if err != nil {
				fail(err.Error())
			}
			succeed("", reply, func() { fmt.Println(reply.Content) })
		},
	}
}

// defaultUploads are the export files uploaded when no paths are given.
var defaultUploads = []struct{ path, title string }{
	{"drive.txt", "Google Drive Documents"},
	{"git.txt", "Git Repository History"},
	{"telegram.txt", "Telegram Chat History"},
}

func newUploadCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "upload <client-id> [file...]",
		Short: "Upload text exports to a client's assistant",
		Long: `Upload text files as memories. With no files, drive.txt, git.txt and
telegram.txt in the current directory are uploaded. Missing or empty files are skipped.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			clientID := args[0]

			type item struct{ path, title string }
			var items []item
			if len(args) == 1 {
				for _, d := range defaultUploads {
					items = append(items, item{d.path, d.title})
				}
			} else {
				for _, p := range args[1:] {
					t := title
					if t == "" {
						t = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
					}
					items = append(items, item{p, t})
				}
			}

			type uploadResult struct {
				Path     string `json:"path"`
				Title    string `json:"title"`
				Status   string `json:"status"`
				Response string `json:"response,omitempty"`
				Error    string `json:"error,omitempty"`
			}
			var results []uploadResult
			failed := 0
			for _, it := range items {
				r := uploadResult{Path: it.path, Title: it.title}
				raw, err := os.ReadFile(it.path)
				switch {
				case errors.Is(err, os.ErrNotExist):
					r.Status = "skipped"
					r.Error = "file not found"
				case err != nil:
					r.Status = "failed"
					r.Error = err.Error()
					failed++
				case strings.TrimSpace(string(raw)) == "":
					r.Status = "skipped"
					r.Error = "file is empty"
				default:
					reply, err := forwardAndRecord(cmd.Context(), a, clientID, "", relay.UploadText(it.title, string(raw)), "upload", it.title)
					if err != nil {
						r.Status = "failed"
						r.Error = err.Error()
						failed++
					} else {
						r.Status = "uploaded"
						r.Response = reply.Content
					}
				}
				results = append(results, r)
			}

			if jsonOutput {
				printJSON(Result{OK: failed == 0, Data: results})
			} else {
				for _, r := range results {
					line := fmt.Sprintf("%-9s %s", r.Status, r.Path)
					if r.Error != "" {
						line += ": " + r.Error
					}
					fmt.Println(line)
				}
			}
			if failed > 0 {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title for uploaded files (defaults to the file name)")
	return cmd
}

func newToolCmd() *cobra.Command {
	var assistant string
	cmd := &cobra.Command{
		Use:   "tool <client-id> <text>",
		Short: "Run the tool invocation found in text",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			res, ok := a.router.Handle(cmd.Context(), args[0], assistant, strings.Join(args[1:], " "))
			if !ok {
				fail("no tool invocation found")
			}
			if jsonOutput {
				printJSON(res)
			} else {
				fmt.Println(res.Text())
			}
			if !res.OK() {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&assistant, "assistant", "", "Assistant id (defaults to the client's assistant)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signalContext()
			defer stop()

			a := mustApp()
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := &server.Server{
				Clients:   a.clients,
				Forwarder: a.fwd,
				Tools:     a.router,
				Documents: a.docs,
				Chats:     a.chats,
				Metrics:   a.metrics,
				APIKey:    a.cfg.Server.APIKey,
				Logger:    a.logger,
			}
			if p, err := a.provisioner(); err == nil {
				srv.Provisioner = p
			} else {
				a.logger.Warn("client registration disabled", "error", err)
			}
			if src, err := a.driveSource(ctx); err == nil {
				srv.Drive = src
			} else {
				a.logger.Warn("drive registration disabled", "error", err)
			}

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					fail(err.Error())
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("http shutdown failed", "error", err)
				}
				a.logger.Info("http server stopped")
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}

func newTelegramCmd() *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Log Telegram group messages and answer tool markers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signalContext()
			defer stop()

			a := mustApp()
			defer a.Close()
			if a.cfg.Telegram.BotToken == "" {
				fail("BOT_TOKEN is not set")
			}
			if client == "" {
				client = a.cfg.Telegram.ClientID
			}

			// Long polls hold the connection for PollTimeout; leave headroom.
			hc := &http.Client{Timeout: a.cfg.Telegram.PollTimeout + 15*time.Second}
			in := &telegram.Ingester{
				Bot:         telegram.NewAPI(hc, a.cfg.Telegram.BaseURL, a.cfg.Telegram.BotToken),
				Log:         a.chats,
				Tools:       a.router,
				ClientID:    client,
				PollTimeout: a.cfg.Telegram.PollTimeout,
				Logger:      a.logger,
			}
			if err := in.Run(ctx); err != nil {
				fail(err.Error())
			}
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client whose assistant answers tool markers (defaults to telegram.client_id)")
	return cmd
}
