package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/AcousticLab/internal/catalog"
	"github.com/himanishpuri/AcousticLab/internal/classifier"
	"github.com/himanishpuri/AcousticLab/internal/download"
	"github.com/himanishpuri/AcousticLab/internal/features"
	"github.com/himanishpuri/AcousticLab/internal/freesound"
	"github.com/himanishpuri/AcousticLab/internal/service"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
)

func handleAuthorize(ctx context.Context, args []string) {
	log := logger.GetLogger()

	cmd := flag.NewFlagSet("authorize", flag.ExitOnError)
	code := cmd.String("code", "", "Authorization code shown by Freesound after granting access")
	cmd.Parse(args)

	if *clientID == "" || *clientSecret == "" {
		fmt.Println("Error: -freesound-client-id and -freesound-client-secret are required")
		os.Exit(1)
	}
	auth := authenticator()

	if *code == "" {
		state := make([]byte, 8)
		rand.Read(state)
		fmt.Println("🔑 Open this URL, log in and grant access:")
		fmt.Printf("\n   %s\n\n", auth.AuthorizeURL(hex.EncodeToString(state)))
		fmt.Println("Then run:  acousticlab authorize -code <code>")
		return
	}

	tok, err := auth.Exchange(ctx, *code)
	if err != nil {
		fail("Failed to exchange authorization code", err)
	}
	if err := freesound.SaveToken(*tokenFile, tok); err != nil {
		fail("Failed to save token", err)
	}
	fmt.Printf("\n✅ Token saved to %s\n", *tokenFile)
	if !tok.Expiry.IsZero() {
		fmt.Printf("   Expires %s (refreshed automatically)\n", humanize.Time(tok.Expiry))
	}
	log.Infof("Saved OAuth2 token to %s", *tokenFile)
}

func handleDownload(ctx context.Context, args []string) {
	cmd := flag.NewFlagSet("download", flag.ExitOnError)
	query := cmd.String("query", "", "Search text (required)")
	filter := cmd.String("filter", download.DefaultFilter, "Freesound search filter")
	sortOrder := cmd.String("sort", "", "Sort order (e.g. score, downloads_desc, rating_desc)")
	pageSize := cmd.Int("page-size", freesound.MaxPageSize, "Results per page (max 150)")
	maxResults := cmd.Int("max", 0, "Stop after this many results (0 = all)")
	preview := cmd.Bool("preview", false, "Fetch mp3 previews and convert them with ffmpeg (no OAuth2 needed)")
	overwrite := cmd.Bool("overwrite", false, "Download clips that already exist again")
	cmd.Parse(args)

	if *query == "" {
		fmt.Println("Usage: acousticlab download -query <text> [-filter <f>] [-max <n>] [-preview]")
		os.Exit(1)
	}

	mode := download.ModeOriginal
	if *preview {
		mode = download.ModePreview
	}
	client, err := freesoundClient(ctx, mode)
	if err != nil {
		fail("Failed to create Freesound client", err)
	}

	fmt.Println("\n🔧 Initializing service...")
	svc := mustService(service.WithClient(client), service.WithDownloadMode(mode))
	defer svc.Close()

	fmt.Printf("📥 Downloading %q into %s...\n", *query, *clipRoot)
	rep, err := svc.Download(ctx, download.Request{
		Query:      *query,
		Filter:     *filter,
		Sort:       *sortOrder,
		PageSize:   *pageSize,
		MaxResults: *maxResults,
		Overwrite:  *overwrite,
	})
	if err != nil {
		fail("Download failed", err)
	}

	fmt.Println("\n✅ Download complete!")
	fmt.Printf("   Seen:       %s\n", humanize.Comma(int64(rep.Seen)))
	fmt.Printf("   Downloaded: %s (%s)\n", humanize.Comma(int64(rep.Downloaded)), humanize.Bytes(uint64(rep.Bytes)))
	fmt.Printf("   Skipped:    %s\n", humanize.Comma(int64(rep.Skipped)))
	fmt.Printf("   Failed:     %s\n", humanize.Comma(int64(rep.Failed)))
}

func handleCatalog(ctx context.Context, args []string) {
	cmd := flag.NewFlagSet("catalog", flag.ExitOnError)
	root := cmd.String("root", "", "Clip directory to scan (default: -clips)")
	out := cmd.String("out", "", "Directory to write music_info.json to (default: the root)")
	fuzzy := cmd.Bool("fuzzy", false, "Label clips by their tags when the name names no instrument")
	cmd.Parse(args)

	svc := mustService(service.WithFuzzyTags(*fuzzy))
	defer svc.Close()

	fmt.Println("🗂  Building catalog...")
	records, path, err := svc.BuildCatalog(ctx, *root, *out)
	if err != nil {
		fail("Failed to build catalog", err)
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[r.InstrumentName]++
	}
	fmt.Printf("\n✅ %d labelled clips written to %s\n\n", len(records), path)
	printCounts(counts)
}

func handleTrain(ctx context.Context, args []string) {
	def := classifier.DefaultTrainConfig()

	cmd := flag.NewFlagSet("train", flag.ExitOnError)
	dataset := cmd.String("dataset", "", "Catalog written by `catalog` (default: <clips>/music_info.json)")
	synthetic := cmd.Bool("synthetic", false, "Train on generated data instead of downloaded clips")
	samples := cmd.Int("samples", 500, "Synthetic sample count")
	classes := cmd.Int("classes", 4, "Synthetic class count")
	testFraction := cmd.Float64("test", classifier.DefaultTestFraction, "Fraction of samples held out for testing")
	epochs := cmd.Int("epochs", def.Epochs, "Training epochs")
	hidden := cmd.Int("hidden", def.Hidden, "Hidden layer width")
	batch := cmd.Int("batch", def.BatchSize, "Mini-batch size")
	lr := cmd.Float64("lr", def.LearningRate, "Learning rate")
	seed := cmd.Uint64("seed", def.Seed, "Random seed for the split and weights")
	cmd.Parse(args)

	cfg := def
	cfg.Epochs, cfg.Hidden, cfg.BatchSize, cfg.LearningRate, cfg.Seed = *epochs, *hidden, *batch, *lr, *seed

	if *dataset == "" {
		*dataset = filepath.Join(*clipRoot, catalog.DatasetFile)
	}

	svc := mustService()
	defer svc.Close()

	if *synthetic {
		fmt.Println("🧪 Training on synthetic data...")
	} else {
		fmt.Printf("🧠 Training on %s...\n", *dataset)
	}
	res, err := svc.Train(ctx, service.TrainRequest{
		Dataset:          *dataset,
		Synthetic:        *synthetic,
		SyntheticSamples: *samples,
		SyntheticClasses: *classes,
		TestFraction:     *testFraction,
		Train:            cfg,
	})
	if err != nil {
		fail("Training failed", err)
	}

	fmt.Println("\n✅ Training complete!")
	fmt.Printf("   Run:       %s\n", res.Run.ID)
	fmt.Printf("   Samples:   %d (train %d / test %d)\n", res.Run.Samples, res.Run.TrainSize, res.Run.TestSize)
	if res.Skipped > 0 {
		fmt.Printf("   Skipped:   %d unreadable clips\n", res.Skipped)
	}
	fmt.Printf("   Classes:   %s\n", strings.Join(res.Classes, ", "))
	fmt.Printf("   Loss:      %.4f\n", res.Run.FinalLoss)
	fmt.Printf("   Accuracy:  %.2f%%\n", res.Run.Accuracy*100)
	fmt.Printf("   Model:     %s\n", res.Run.ModelPath)

	fmt.Println("\n📊 Confusion matrix (rows: actual, columns: predicted):")
	for i, row := range res.Result.Confusion {
		fmt.Printf("   %-14s", res.Classes[i])
		for _, v := range row {
			fmt.Printf(" %4d", v)
		}
		fmt.Println()
	}
}

func handlePredict(ctx context.Context, args []string) {
	files, rest := splitArgs(args)
	cmd := flag.NewFlagSet("predict", flag.ExitOnError)
	cmd.Parse(rest)
	files = append(files, cmd.Args()...)

	if len(files) == 0 {
		fmt.Println("Usage: acousticlab predict <audio_file> [...]")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	for _, file := range files {
		pred, err := svc.Predict(ctx, *modelPath, file)
		if err != nil {
			fail("Prediction failed for "+file, err)
		}
		fmt.Printf("\n🎻 %s → %s (%.1f%%)\n", file, pred.Label, pred.Confidence*100)

		labels := make([]string, 0, len(pred.Probabilities))
		for l := range pred.Probabilities {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool {
			return pred.Probabilities[labels[i]] > pred.Probabilities[labels[j]]
		})
		for _, l := range labels[:min(3, len(labels))] {
			fmt.Printf("   %-14s %.3f\n", l, pred.Probabilities[l])
		}
	}
}

func handleSpectrogram(args []string) {
	files, rest := splitArgs(args)
	def := features.DefaultRenderOptions()

	cmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	out := cmd.String("out", "", "Output PNG (default: <input>.png)")
	width := cmd.Int("width", def.Width, "Image width")
	height := cmd.Int("height", def.Height, "Image height")
	log10 := cmd.Bool("log", false, "Logarithmic frequency axis")
	cmd.Parse(rest)
	files = append(files, cmd.Args()...)

	if len(files) != 1 {
		fmt.Println("Usage: acousticlab spectrogram <wav_file> [-out <png>]")
		os.Exit(1)
	}
	if *out == "" {
		*out = strings.TrimSuffix(files[0], ".wav") + ".png"
	}

	err := features.RenderPNG(files[0], *out, features.RenderOptions{Width: *width, Height: *height, Log10: *log10})
	if err != nil {
		fail("Failed to render spectrogram", err)
	}
	fmt.Printf("✅ Spectrogram written to %s\n", *out)
}

func handleClips(args []string) {
	cmd := flag.NewFlagSet("clips", flag.ExitOnError)
	label := cmd.String("label", "", "Only list clips with this instrument label")
	cmd.Parse(args)

	svc := mustService()
	defer svc.Close()

	clips, err := svc.ListClips(*label)
	if err != nil {
		fail("Failed to list clips", err)
	}
	if len(clips) == 0 {
		fmt.Println("\n📭 No clips in catalog")
		return
	}

	fmt.Printf("\n📚 Found %d clip(s):\n\n", len(clips))
	for _, c := range clips {
		label := c.Label
		if label == "" {
			label = "-"
		}
		fmt.Printf("%8d  %-12s %-40s %6.2fs  %s\n", c.ID, label, c.Name, c.Duration, humanize.Bytes(uint64(c.Filesize)))
	}

	counts, err := svc.LabelCounts()
	if err == nil && len(counts) > 0 && *label == "" {
		fmt.Println()
		printCounts(counts)
	}
}

func handleRuns(args []string) {
	cmd := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := cmd.Int("limit", 10, "Number of runs to show")
	cmd.Parse(args)

	svc := mustService()
	defer svc.Close()

	runs, err := svc.ListRuns(*limit)
	if err != nil {
		fail("Failed to list runs", err)
	}
	if len(runs) == 0 {
		fmt.Println("\n📭 No training runs yet")
		return
	}

	fmt.Printf("\n📈 %d training run(s):\n\n", len(runs))
	for _, r := range runs {
		kind := "clips"
		if r.Synthetic {
			kind = "synthetic"
		}
		fmt.Printf("%s  %-9s %6.2f%%  %4d samples  %s\n", r.ID, kind, r.Accuracy*100, r.Samples, humanize.Time(r.CreatedAt))
		fmt.Printf("   classes: %s\n", strings.Join(r.Classes, ", "))
	}
}

func printCounts(counts map[string]int) {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("   %-14s %d\n", l, counts[l])
	}
}
