package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/cardscan/internal/capture"
	"github.com/zombor/cardscan/internal/card"
	"github.com/zombor/cardscan/internal/consensus"
	"github.com/zombor/cardscan/internal/extract"
	"github.com/zombor/cardscan/internal/recognize"
	"github.com/zombor/cardscan/internal/scan"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// exitNoResult is returned by scan mode when the source ran out before both
// fields were confirmed
const exitNoResult = 2

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("cardscan")
	var (
		mode          = fs.StringLong("mode", "scan", "Run mode: 'scan' (one session from a frame source) or 'serve' (HTTP API)")
		port          = fs.IntLong("port", 8080, "HTTP server port (serve mode)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		sessionTTL    = fs.DurationLong("session-ttl", 5*time.Minute, "Idle time after which a session is discarded (serve mode)")
		recognizerTyp = fs.StringLong("recognizer", "tesseract", "Recognizer: 'gemini', 'ollama', 'tesseract' or 'text'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		tessLang      = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		sourceType    = fs.StringLong("source", "dir", "Frame source: 'dir', 'pdf' or 'webcam' (scan mode)")
		framesPath    = fs.StringLong("frames", "./frames", "Frame directory or PDF file (scan mode)")
		device        = fs.StringLong("device", "0", "Capture device index or URL (webcam source)")
		roiFlag       = fs.StringLong("roi", "", "Card region of interest as x,y,w,h in frame pixels (webcam source)")
		grabSkip      = fs.IntLong("grab-skip", 2, "Buffered frames to discard before each read (webcam source)")
		cardRule      = fs.StringLong("card-rule", "loose", "Card number rule: 'loose' or 'issuer'")
		cardPattern   = fs.StringLong("card-pattern", "", "Card number regexp override (one capture group)")
		expiryPattern = fs.StringLong("expiry-pattern", "", "Expiry regexp override (month and year capture groups)")
		yearWindow    = fs.StringLong("year-window", "static", "Expiry year window: 'static' or 'rolling'")
		yearMin       = fs.IntLong("year-min", 10, "First accepted two-digit expiry year (static window)")
		yearMax       = fs.IntLong("year-max", 29, "Last accepted two-digit expiry year (static window)")
		yearSpan      = fs.IntLong("year-span", 20, "Years after the current one to accept (rolling window)")
		threshold     = fs.IntLong("threshold", consensus.DefaultThreshold, "Prior identical reads a value must exceed to confirm")
		consensusMode = fs.StringLong("consensus", string(consensus.Consecutive), "Consensus mode: 'consecutive' or 'cumulative'")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CARDSCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Build the extractor; a bad pattern stops us here
	window := extract.YearWindow{Min: *yearMin, Max: *yearMax}
	switch *yearWindow {
	case "static":
	case "rolling":
		window = extract.RollingYearWindow(time.Now(), *yearSpan)
	default:
		slog.Error("Invalid year window", "window", *yearWindow, "valid", "static or rolling")
		os.Exit(1)
	}
	ex, err := extract.New(extract.Options{
		CardRule:      extract.CardRule(*cardRule),
		YearWindow:    window,
		CardPattern:   *cardPattern,
		ExpiryPattern: *expiryPattern,
	})
	if err != nil {
		slog.Error("Invalid extraction patterns", "error", err)
		os.Exit(1)
	}

	cmode, err := consensus.ParseMode(*consensusMode)
	if err != nil {
		slog.Error("Invalid consensus mode", "error", err)
		os.Exit(1)
	}
	if *threshold < 0 {
		slog.Error("Threshold must not be negative", "threshold", *threshold)
		os.Exit(1)
	}
	cfg := scan.Config{Threshold: *threshold, Mode: cmode}

	if *mode == "serve" {
		if err := validateSessionTTL(*sessionTTL); err != nil {
			slog.Error("Invalid session TTL", "session_ttl", *sessionTTL, "error", err)
			os.Exit(1)
		}
	}

	rec, err := newRecognizer(*recognizerTyp, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel, *tessLang)
	if err != nil {
		slog.Error("Failed to initialize recognizer", "recognizer", *recognizerTyp, "error", err)
		os.Exit(1)
	}
	defer rec.Close()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	switch *mode {
	case "serve":
		err = serve(ctx, ex, cfg, rec, *port, card.BasicAuth{Username: *authUser, Password: *authPass}, *sessionTTL)
	case "scan":
		var src capture.Source
		src, err = newSource(*sourceType, *framesPath, *device, *roiFlag, *grabSkip)
		if err != nil {
			slog.Error("Failed to open frame source", "source", *sourceType, "error", err)
			os.Exit(1)
		}
		err = runScan(ctx, ex, cfg, rec, src, *sourceType == "webcam")
		src.Close()
	default:
		slog.Error("Invalid mode", "mode", *mode, "valid", "scan or serve")
		os.Exit(1)
	}

	if errors.Is(err, scan.ErrClosed) {
		rec.Close()
		os.Exit(exitNoResult)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Exiting", "error", err)
		rec.Close()
		os.Exit(1)
	}
}

func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func newRecognizer(kind, geminiKey, geminiModel, ollamaURL, ollamaModel, tessLang string) (recognize.Recognizer, error) {
	switch kind {
	case "gemini":
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", geminiModel)
		return recognize.NewGemini(apiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", ollamaURL, "model", ollamaModel)
		return recognize.NewOllama(ollamaURL, ollamaModel)
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "language", tessLang)
		return recognize.NewTesseract(tessLang)
	case "text":
		return recognize.NewText(), nil
	default:
		return nil, fmt.Errorf("invalid recognizer type %q (valid: gemini, ollama, tesseract, text)", kind)
	}
}

func newSource(kind, path, device, roi string, skip int) (capture.Source, error) {
	switch kind {
	case "dir":
		return capture.NewDirSource(path)
	case "pdf":
		return capture.NewPDFSource(path)
	case "webcam":
		rect, err := parseROI(roi)
		if err != nil {
			return nil, err
		}
		return capture.OpenWebcam(device, capture.WebcamOptions{ROI: rect, Skip: skip})
	default:
		return nil, fmt.Errorf("invalid source type %q (valid: dir, pdf, webcam)", kind)
	}
}

// parseROI parses "x,y,w,h"; the empty string means the whole frame
func parseROI(s string) (image.Rectangle, error) {
	if s == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("region of interest %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("region of interest %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("region of interest %q: width and height must be positive", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

// runScan drives one session from src until it completes or the source ends
func runScan(ctx context.Context, ex *extract.Extractor, cfg scan.Config, rec recognize.Recognizer, src capture.Source, live bool) error {
	session := scan.NewSession(ex, cfg)

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()

	pumpDone := make(chan error, 1)
	go func() {
		stats, err := capture.Pump(pumpCtx, src, rec, session, capture.PumpOptions{DropWhenBusy: live})
		slog.Info("Frame source finished",
			"frames", stats.Frames,
			"processed", stats.Processed,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
		// Nothing more will arrive; a session that has not completed by now never will
		session.Close()
		pumpDone <- err
	}()

	_, err := scan.Await(ctx, session, stopPump, func(r scan.Result) {
		fmt.Printf("card=%s expiry=%s\n", r.CardNumber, r.Expiry)
	})
	if errors.Is(err, scan.ErrClosed) {
		if perr := <-pumpDone; perr != nil && !errors.Is(perr, context.Canceled) {
			return fmt.Errorf("reading frames: %w", perr)
		}
		slog.Warn("Frame source ended before the card was confirmed", "status", session.Status())
		return err
	}
	if err != nil {
		// the pump may still be inside the source or recognizer, which the
		// caller closes as soon as we return
		stopPump()
		<-pumpDone
		return err
	}
	<-pumpDone
	return nil
}

// validateSessionTTL rejects TTLs the sweeper cannot tick on
func validateSessionTTL(ttl time.Duration) error {
	if ttl < 2*time.Nanosecond {
		return fmt.Errorf("session ttl must be at least 2ns, got %s", ttl)
	}
	return nil
}

// serve runs the HTTP API until ctx is done
func serve(ctx context.Context, ex *extract.Extractor, cfg scan.Config, rec recognize.Recognizer, port int, auth card.BasicAuth, ttl time.Duration) error {
	if err := validateSessionTTL(ttl); err != nil {
		return err
	}

	service := card.NewService(ex, cfg, rec, func(id string, r scan.Result) {
		slog.Info("Scan session result", "session", id, "card", r.CardNumber.Masked(), "expiry", r.Expiry.String())
	})
	defer service.Close()

	go service.RunSweeper(ctx, ttl, ttl/2)

	server := card.NewServer(service, auth)
	addr := fmt.Sprintf(":%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if auth.Username != "" || auth.Password != "" {
		slog.Info("Basic auth enabled", "user", auth.Username)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return nil
	}
}
