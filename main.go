package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xhs_note_console/clipboard"
	"xhs_note_console/config"
	"xhs_note_console/endpoint"
	"xhs_note_console/generator"
	"xhs_note_console/history"
	"xhs_note_console/logger"
	"xhs_note_console/preview"
	"xhs_note_console/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.json", "path to config.json")
	content := flag.String("content", "", "basic content of the note (required in CLI mode)")
	models := flag.String("models", "", "comma separated models, at most 3 (default: configured default model)")
	purpose := flag.String("purpose", "", "note purpose")
	trends := flag.String("trends", "", "recent trends")
	style := flag.String("style", "", "writing style")
	audience := flag.String("audience", "", "target audience")
	contentType := flag.String("type", "", "content type")
	links := flag.String("links", "", "reference links")
	copyAll := flag.String("copy-all", "", "copy the whole note of this model to the clipboard")
	serve := flag.Bool("serve", false, "start web console")
	addr := flag.String("addr", "", "http listen address when --serve (overrides config.server_addr)")
	apiURL := flag.String("api", "", "backend base url (overrides config and NOTES_API_URL)")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *apiURL != "" {
		cfg.APIBaseURL = *apiURL
	}
	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	if err := logger.Initialize(level); err != nil {
		return err
	}
	defer logger.Sync()

	base := endpoint.Resolve(cfg.EndpointContext())
	logger.Log.Debug("backend resolved", zap.String("base_url", base), zap.Bool("server_side", cfg.ServerSide))

	client := generator.NewClient(base, nil)
	counter := history.NewCounter()
	orch, err := generator.NewOrchestrator(client, generator.Options{
		DefaultModel: cfg.Models.Default,
		Catalog:      cfg.Models.Catalog,
		Timeout:      cfg.GenerateTimeout(),
		Notifier:     counter,
	})
	if err != nil {
		return err
	}
	clip := clipboard.NewService(
		clipboard.NewNativeWriter(),
		clipboard.NewTerminalWriter(os.Stdout),
		clipboard.WithCue(clipboard.BellCue{Out: os.Stderr}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		listen := cfg.ServerAddr
		if *addr != "" {
			listen = *addr
		}
		return serveConsole(ctx, listen, orch, clip, client, counter)
	}

	if strings.TrimSpace(*content) == "" {
		return errors.New("--content is required (or use --serve)")
	}
	err = orch.Edit(func(f *generator.Form) error {
		f.BasicContent = *content
		f.NotePurpose = *purpose
		f.RecentTrends = *trends
		f.WritingStyle = *style
		f.TargetAudience = *audience
		f.ContentType = *contentType
		f.ReferenceLinks = *links
		return nil
	})
	if err != nil {
		return err
	}
	if *models != "" {
		if err := orch.SelectModels(strings.Split(*models, ",")); err != nil {
			return fmt.Errorf("--models: %w", err)
		}
	}

	set, err := orch.Generate(ctx)
	if err != nil {
		var ge *generator.GenerateError
		if errors.As(err, &ge) {
			return errors.New(ge.Message)
		}
		return err
	}

	width := 0
	if isatty.IsTerminal(os.Stdout.Fd()) {
		width = 80
	}
	fmt.Println(preview.Terminal(set, orch.Snapshot().Requested, width))

	if *copyAll != "" {
		note := set[*copyAll]
		if note == nil {
			return fmt.Errorf("no result for model %s", *copyAll)
		}
		if clip.CopyAll(preview.CopyAllText(*note)) == clipboard.Failed {
			return errors.New(clipboard.FailureMessage)
		}
		logger.Log.Info("note copied", zap.String("model", *copyAll))
	}
	return nil
}

func serveConsole(ctx context.Context, listen string, orch *generator.Orchestrator, clip *clipboard.Service, client *generator.Client, counter *history.Counter) error {
	srv, err := server.New(orch, clip, client, client, counter)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for rev := range counter.Watch(ctx) {
			logger.Log.Info("history updated", zap.Uint64("revision", rev))
			if err := srv.RefreshNotes(ctx); err != nil {
				logger.Log.Warn("refresh notes failed", zap.Uint64("revision", rev), zap.Error(err))
			}
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Log.Info("starting web console", zap.String("addr", listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
