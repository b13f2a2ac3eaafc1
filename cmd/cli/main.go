package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/csmith/envflag/v2"
	"github.com/himanishpuri/AcousticLab/internal/download"
	"github.com/himanishpuri/AcousticLab/internal/freesound"
	"github.com/himanishpuri/AcousticLab/internal/service"
	"github.com/himanishpuri/AcousticLab/internal/storage"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
)

// Global flags. Each can also be set through the environment, e.g. -clips as
// CLIPS and -freesound-client-id as FREESOUND_CLIENT_ID.
var (
	dbPath    = flag.String("db", storage.DefaultDBFile, "Path to the SQLite catalog database")
	clipRoot  = flag.String("clips", service.DefaultClipRoot, "Directory downloaded clips are stored in")
	tempDir   = flag.String("temp", os.TempDir(), "Directory for temporary audio conversion files")
	modelPath = flag.String("model", filepath.Join("models", service.DefaultModelFile), "Path of the trained model")
	logFile   = flag.String("log-file", "", "Also write log lines to this file")
	logLevel  = flag.String("log-level", "", "Minimum log level (DEBUG, INFO, WARN, ERROR)")

	clientID     = flag.String("freesound-client-id", "", "Freesound OAuth2 client id")
	clientSecret = flag.String("freesound-client-secret", "", "Freesound client secret (API key)")
	tokenFile    = flag.String("freesound-token-file", "freesound_token.json", "Where the OAuth2 token is saved")
	redirectURL  = flag.String("freesound-redirect-url", freesound.DefaultRedirectURL, "OAuth2 redirect URL registered for the app")
)

func main() {
	envflag.Parse()
	log := logger.GetLogger()
	configureLogger(log)
	defer log.Close()

	printBanner()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	log.Infof("Executing command: %s", command)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch command {
	case "authorize":
		handleAuthorize(ctx, rest)
	case "download":
		handleDownload(ctx, rest)
	case "catalog":
		handleCatalog(ctx, rest)
	case "train":
		handleTrain(ctx, rest)
	case "predict":
		handlePredict(ctx, rest)
	case "spectrogram":
		handleSpectrogram(rest)
	case "clips":
		handleClips(rest)
	case "runs":
		handleRuns(rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func configureLogger(log *logger.Logger) {
	if *logLevel != "" {
		level, ok := logger.ParseLevel(*logLevel)
		if !ok {
			fmt.Printf("Unknown log level %q\n", *logLevel)
			os.Exit(1)
		}
		log.SetLevel(level)
	}
	if *logFile != "" {
		if err := log.SetFile(*logFile); err != nil {
			fmt.Printf("❌ Failed to open log file: %v\n", err)
			os.Exit(1)
		}
	}
}

// createService creates the pipeline service with the configured options.
func createService(opts ...service.Option) (*service.Service, error) {
	base := []service.Option{
		service.WithDBPath(*dbPath),
		service.WithClipRoot(*clipRoot),
		service.WithTempDir(*tempDir),
		service.WithModelPath(*modelPath),
	}
	return service.NewService(append(base, opts...)...)
}

func mustService(opts ...service.Option) *service.Service {
	svc, err := createService(opts...)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		logger.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func authenticator() *freesound.Authenticator {
	return freesound.NewAuthenticator(freesound.OAuthConfig(*clientID, *clientSecret, *redirectURL))
}

// freesoundClient builds an API client. A saved OAuth2 token is used when
// present; original downloads need it, previews only need the client secret.
func freesoundClient(ctx context.Context, mode download.Mode) (*freesound.Client, error) {
	if *clientSecret == "" {
		return nil, errors.New("-freesound-client-secret (or FREESOUND_CLIENT_SECRET) is required")
	}
	log := logger.GetLogger()
	opts := []freesound.Option{
		freesound.WithAPIKey(*clientSecret),
		freesound.WithLogger(log.Named("freesound")),
	}

	ts, err := authenticator().PersistentTokenSource(ctx, *tokenFile)
	switch {
	case err == nil:
		opts = append(opts, freesound.WithTokenSource(ts))
	case errors.Is(err, freesound.ErrNoToken) && mode == download.ModePreview:
		log.Debugf("No OAuth2 token, using token auth for previews")
	case errors.Is(err, freesound.ErrNoToken):
		return nil, fmt.Errorf("%w; run `acousticlab authorize` first or use -preview", err)
	default:
		return nil, err
	}
	return freesound.NewClient(opts...), nil
}

func fail(what string, err error) {
	fmt.Printf("\n❌ %s: %v\n", what, err)
	logger.Errorf("%s: %v", what, err)
	os.Exit(1)
}

// splitArgs separates leading positional arguments from flags so that both
// `predict clip.wav -model m` and `predict -model m clip.wav` work.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func printBanner() {
	banner := `
    _                       _   _      _          _
   / \   ___ ___  _   _ ___| |_(_) ___| |    __ _| |__
  / _ \ / __/ _ \| | | / __| __| |/ __| |   / _` + "`" + ` | '_ \
 / ___ \ (_| (_) | |_| \__ \ |_| | (__| |__| (_| | |_) |
/_/   \_\___\___/ \__,_|___/\__|_|\___|_____\__,_|_.__/

        Freesound clips & instrument classification
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("AcousticLab - Freesound downloader and instrument classifier")
	fmt.Println("\nGlobal Options (each also read from the environment, e.g. CLIPS, FREESOUND_CLIENT_ID):")
	fmt.Println("  -db <path>                      SQLite catalog (default: acousticlab.sqlite3)")
	fmt.Println("  -clips <dir>                    Clip store (default: clips)")
	fmt.Println("  -temp <dir>                     Temporary directory for audio conversion")
	fmt.Println("  -model <path>                   Model file (default: models/model.json.lzw)")
	fmt.Println("  -freesound-client-id <id>       OAuth2 client id")
	fmt.Println("  -freesound-client-secret <key>  Client secret, also used as API key")
	fmt.Println("  -freesound-token-file <path>    Saved OAuth2 token (default: freesound_token.json)")
	fmt.Println("  -log-file <path>                Tee log output to a file")
	fmt.Println("  -log-level <level>              DEBUG, INFO, WARN or ERROR")
	fmt.Println("\nUsage:")
	fmt.Println("  acousticlab [global-options] authorize [-code <code>]")
	fmt.Println("  acousticlab [global-options] download -query <text> [-filter <f>] [-max <n>] [-preview] [-overwrite]")
	fmt.Println("  acousticlab [global-options] catalog [-root <dir>] [-out <dir>] [-fuzzy]")
	fmt.Println("  acousticlab [global-options] train [-dataset <music_info.json>] [-synthetic] [-epochs <n>]")
	fmt.Println("  acousticlab [global-options] predict <audio_file>")
	fmt.Println("  acousticlab [global-options] spectrogram <wav_file> [-out <png>]")
	fmt.Println("  acousticlab [global-options] clips [-label <instrument>]")
	fmt.Println("  acousticlab [global-options] runs [-limit <n>]")
	fmt.Println("\nExamples:")
	fmt.Println("  # Grant access once, then download originals")
	fmt.Println("  acousticlab authorize")
	fmt.Println("  acousticlab authorize -code <code shown by freesound>")
	fmt.Println("  acousticlab download -query violin -max 50")
	fmt.Println()
	fmt.Println("  # Label, train and classify")
	fmt.Println("  acousticlab catalog && acousticlab train && acousticlab predict note.wav")
	fmt.Println()
	fmt.Println("  # Try the training loop without downloading anything")
	fmt.Println("  acousticlab train -synthetic")
}
