// Command epgbridge: Xtream-compatible front for IPTV panels with a merged,
// normalized EPG.
//
//	serve  Run the HTTP API (player_api.php, xmltv.php, get.php, /healthz, /metrics)
//	epg    Fetch every EPG source once and write the merged XMLTV (or a summary)
//	match  Fetch a provider's live streams and report which ones got an EPG channel
//	check  Check EPG sources, provider panels and, optionally, a running server
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgbridge/internal/config"
	"github.com/snapetech/epgbridge/internal/epglink"
	"github.com/snapetech/epgbridge/internal/health"
	"github.com/snapetech/epgbridge/internal/logging"
	"github.com/snapetech/epgbridge/internal/safeurl"
	"github.com/snapetech/epgbridge/internal/xmltv"
	"github.com/snapetech/epgbridge/internal/xtream"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <serve|epg|match|check> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  serve  Run the HTTP API\n")
	fmt.Fprintf(os.Stderr, "  epg    Fetch EPG sources once, write merged XMLTV (-summary for counts only)\n")
	fmt.Fprintf(os.Stderr, "  match  Report EPG matches for a provider's live streams (-user, -pass)\n")
	fmt.Fprintf(os.Stderr, "  check  Check sources and panels (-endpoints to also check a running server)\n")
}

func main() {
	_ = config.LoadEnvFile(".env")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveAddr := serveCmd.String("addr", "", "Listen address (default: EPGBRIDGE_LISTEN)")
	serveWarm := serveCmd.Bool("warm", true, "Load the EPG in the background at startup")

	epgCmd := flag.NewFlagSet("epg", flag.ExitOnError)
	epgOut := epgCmd.String("o", "", "Output file (default: stdout)")
	epgSummary := epgCmd.Bool("summary", false, "Print per-source counts instead of XMLTV")

	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	matchProvider := matchCmd.String("provider", config.DefaultProvider, "Provider name")
	matchUser := matchCmd.String("user", "", "Panel username")
	matchPass := matchCmd.String("pass", "", "Panel password")
	matchJSON := matchCmd.Bool("json", false, "Print the full report as JSON")
	matchUnmatched := matchCmd.Bool("unmatched", true, "List unmatched streams")

	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkUser := checkCmd.String("user", "", "Panel username (default: reachability only)")
	checkPass := checkCmd.String("pass", "", "Panel password")
	checkEndpoints := checkCmd.String("endpoints", "", "Base URL of a running epgbridge to check, e.g. http://localhost:8080")
	checkTimeout := checkCmd.Duration("timeout", 60*time.Second, "Overall timeout")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	switch os.Args[1] {
	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		if *serveAddr != "" {
			cfg.Listen = *serveAddr
		}
	case "epg":
		_ = epgCmd.Parse(os.Args[2:])
	case "match":
		_ = matchCmd.Parse(os.Args[2:])
	case "check":
		_ = checkCmd.Parse(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	a, err := newApp(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, a, *serveWarm)
	case "epg":
		err = runEPG(ctx, a, *epgOut, *epgSummary)
	case "match":
		err = runMatch(ctx, a, *matchProvider, xtream.Credentials{Username: *matchUser, Password: *matchPass}, *matchJSON, *matchUnmatched)
	case "check":
		cctx, cancel := context.WithTimeout(ctx, *checkTimeout)
		err = runCheck(cctx, a, xtream.Credentials{Username: *checkUser, Password: *checkPass}, *checkEndpoints)
		cancel()
	}
	if err != nil {
		a.close()
		log.WithError(err).Fatal(os.Args[1] + " failed")
	}
}

func runServe(ctx context.Context, a *app, warm bool) error {
	if len(a.cfg.EPGSources) == 0 {
		a.log.Warn("no EPG sources configured (EPGBRIDGE_EPG_SOURCES); guide will be empty")
	}
	for _, name := range a.cfg.ProviderNames() {
		a.log.WithField("provider", name).WithField("url", safeurl.Redact(a.cfg.Providers[name])).Info("provider registered")
	}
	if warm {
		go a.epg.Get(ctx)
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.cfg.Listen).Info("listening")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("shutdown")
		}
		<-serverErr
		return nil
	}
}

func runEPG(ctx context.Context, a *app, out string, summary bool) error {
	ds := a.epg.Refresh(ctx)
	if summary {
		for _, s := range ds.Sources {
			fmt.Printf("%-60s channels=%d programmes=%d\n", s.URL, s.Channels, s.Programmes)
		}
		fmt.Printf("merged: %d sources, %d channels, %d programmes\n", len(ds.Sources), len(ds.Channels), ds.ProgrammeCount())
		return nil
	}
	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := xmltv.WriteMerged(w, a.cfg.Generator, ds.Raw); err != nil {
		return err
	}
	if out != "" {
		a.log.WithFields(logrus.Fields{"file": out, "channels": len(ds.Channels), "programmes": ds.ProgrammeCount()}).Info("wrote merged xmltv")
	}
	return nil
}

func runMatch(ctx context.Context, a *app, provider string, creds xtream.Credentials, asJSON, listUnmatched bool) error {
	panel, ok := a.panels[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q (configured: %v)", provider, a.cfg.ProviderNames())
	}
	streams, err := panel.LiveStreams(ctx, creds, "")
	if err != nil {
		return err
	}
	rep := epglink.MatchStreams(streams, a.epg.Get(ctx))
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Println(rep.SummaryString())
	if listUnmatched {
		for _, row := range rep.UnmatchedRows() {
			fmt.Printf("  %-8s %-40q %q (%s)\n", row.StreamID, row.Name, row.Normalized, row.Reason)
		}
	}
	return nil
}

func runCheck(ctx context.Context, a *app, creds xtream.Credentials, endpoints string) error {
	var results []health.Result
	for _, src := range a.cfg.EPGSources {
		results = append(results, health.Result{Name: "source " + safeurl.Redact(src.URL), Err: health.CheckSource(ctx, src.URL)})
	}
	for _, name := range a.cfg.ProviderNames() {
		results = append(results, health.Result{Name: "provider " + name, Err: health.CheckPanel(ctx, a.panels[name], creds)})
		if creds.Username != "" && creds.Password != "" {
			results = append(results, health.Result{Name: "provider " + name + " guide", Err: health.CheckSource(ctx, a.panels[name].XMLTVURL(creds))})
		}
	}
	if endpoints != "" {
		results = append(results, health.Result{Name: "endpoints " + endpoints, Err: health.CheckEndpoints(ctx, endpoints)})
	}
	for _, r := range results {
		fmt.Println(r)
	}
	if health.Failed(results) {
		return fmt.Errorf("%d checks run, some failed", len(results))
	}
	return nil
}
