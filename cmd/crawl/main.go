// Command crawl runs one listing crawl from the terminal and writes the
// result as an xlsx workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"stayscraper/internal/browser"
	"stayscraper/internal/config"
	"stayscraper/internal/core/crawl"
	"stayscraper/internal/core/export"
	"stayscraper/internal/core/extract"
	"stayscraper/internal/core/ladder"
	"stayscraper/internal/core/listing"
	"stayscraper/internal/core/paginate"
)

func main() {
	cfg := config.Load()

	searchURL := flag.String("url", "", "Search results URL to crawl")
	pages := flag.Int("pages", 5, fmt.Sprintf("Number of result pages to visit (1-%d)", crawl.MaxPages))
	out := flag.String("out", "", "Output workbook (default listings_<timestamp>.xlsx)")
	stealth := flag.Bool("stealth", cfg.UseStealth, "Try the stealth browser first")
	engine := flag.String("engine", cfg.BrowserEngine, "Browser engine (chromedp|playwright)")
	replay := flag.String("replay", "", "Comma separated saved HTML pages to crawl instead of a live browser")
	preview := flag.Int("preview", 10, "Rows shown in the summary table")
	selectors := flag.String("selectors", cfg.SelectorsFile, "YAML selector ladder overriding the built-in one")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: crawl -url <search url> [-pages N] [-out file.xlsx] [-stealth] [-engine chromedp|playwright] [-replay a.html,b.html]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *replay != "" && *searchURL == "" {
		*searchURL = cfg.BaseURL + "/s/replay/homes"
	}
	if err := crawl.ValidateRequest(*searchURL, *pages); err != nil {
		pterm.Error.Println(err)
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = export.Filename(time.Now())
	}

	l, err := ladder.Load(*selectors)
	if err != nil {
		pterm.Fatal.Printfln("selectors: %v", err)
	}

	opts := browser.Options{
		Engine:     browser.Engine(strings.ToLower(*engine)),
		Stealth:    *stealth,
		Headless:   cfg.BrowserHeadless,
		Bin:        cfg.BrowserBin,
		UserAgent:  cfg.UserAgent,
		Lang:       cfg.BrowserLang,
		NavTimeout: cfg.NavTimeout,
	}
	pause := browser.Pause
	var docs []string
	if *replay != "" {
		if docs, err = readPages(strings.Split(*replay, ",")); err != nil {
			pterm.Fatal.Println(err)
		}
		opts = browser.Options{Engine: browser.EngineSnapshot}
		pause = browser.NoPause
	}
	browsers := browser.NewManager(opts)
	if docs != nil {
		browsers.Register(browser.EngineSnapshot, browser.SnapshotLauncher(docs...))
	}

	crawler := crawl.NewCrawler(
		browsers,
		extract.New(l, cfg.BaseURL),
		paginate.New(l.Pagination.Next, pause),
		pause,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bar := pb.New(*pages)
	bar.Set("prefix", "pages ")
	bar.Start()
	records, runErr := crawler.Run(ctx, *searchURL, *pages, func(page int, _, cumulative []listing.Record) error {
		bar.SetCurrent(int64(page))
		bar.Set("suffix", fmt.Sprintf(" %d listings", len(cumulative)))
		return nil
	})
	bar.Finish()

	if runErr != nil {
		if re, ok := crawl.IsRunError(runErr); ok {
			pterm.Error.Printfln("crawl stopped on page %d: %v", re.Page, re.Err)
		} else {
			pterm.Error.Printfln("crawl failed: %v", runErr)
		}
		if len(records) == 0 {
			os.Exit(1)
		}
		pterm.Warning.Printfln("saving the %d listings gathered before the failure", len(records))
	}
	if len(records) == 0 {
		pterm.Warning.Println("no listings found")
		return
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(summary(records, *preview)).Render(); err != nil {
		pterm.Warning.Printfln("render table: %v", err)
	}

	data, err := export.Bytes(records)
	if err != nil {
		pterm.Fatal.Printfln("build workbook: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		pterm.Fatal.Printfln("write %s: %v", *out, err)
	}
	pterm.Success.Printfln("%d listings saved to %s (%s)", len(records), *out, humanize.Bytes(uint64(len(data))))
	if runErr != nil {
		os.Exit(1)
	}
}

func readPages(paths []string) ([]string, error) {
	docs := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("replay page: %w", err)
		}
		docs = append(docs, string(b))
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("replay: no pages given")
	}
	return docs, nil
}
