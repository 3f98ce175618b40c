// promptctx fits a conversation into a model's token budget, renders it
// through a chat template and optionally generates a completion.
//
//	promptctx [flags] <command> [conversation-file]
//
// Commands:
//
//	select    print the selected conversation and a budget report as JSON
//	prompt    print the rendered prompt exactly as the backend receives it
//	generate  stream a completion for the conversation
//	watch     re-render the prompt whenever the conversation file changes
//	schema    print the JSON Schema of the configuration file
//
// The conversation is read from the file argument, or from stdin when the
// argument is "-" or missing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/randalmurphal/promptctx/contextmgr"
	"github.com/randalmurphal/promptctx/conversation"
	"github.com/randalmurphal/promptctx/llm"
	"github.com/randalmurphal/promptctx/provider"
	_ "github.com/randalmurphal/promptctx/providers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	budget      int
	template    string
	tmplFile    string
	policy      string
	cut         string
	tokenizer   string
	model       string
	logLevel    string
	maxTokens   int
	temperature float64
	byWord      bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("promptctx", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .toml, .json or .jsonc)")
	flagSet.IntVar(&opts.budget, "budget", 0, "token budget for the selected conversation")
	flagSet.StringVar(&opts.template, "template", "", "built-in chat template name")
	flagSet.StringVar(&opts.tmplFile, "template-file", "", "path to a chat template file")
	flagSet.StringVar(&opts.policy, "policy", "", "history to keep when over budget: oldest or newest")
	flagSet.StringVar(&opts.cut, "cut", "", "part of the boundary message to keep: end, start or middle")
	flagSet.StringVar(&opts.tokenizer, "tokenizer", "", "tokenizer: sidecar, tiktoken or words")
	flagSet.StringVar(&opts.model, "model", "", "backend model (GGUF path or model id)")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flagSet.IntVar(&opts.maxTokens, "max-tokens", 0, "completion token limit")
	flagSet.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature")
	flagSet.BoolVar(&opts.byWord, "by-word", false, "generate: print whole words only")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return errors.New("missing command")
	}
	command, rest := rest[0], rest[1:]
	if len(rest) > 1 {
		return fmt.Errorf("%s: expected at most one conversation file, got %d", command, len(rest))
	}
	path := "-"
	if len(rest) == 1 {
		path = rest[0]
	}

	if command == "schema" {
		data, err := llm.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}

	cfg, err := loadConfig(flagSet, opts)
	if err != nil {
		return err
	}

	switch command {
	case "select":
		return withManager(ctx, cfg, func(mgr *contextmgr.Manager) error {
			msgs, err := readConversation(path, stdin)
			if err != nil {
				return err
			}
			return printSelection(stdout, mgr, msgs)
		})

	case "prompt":
		return withManager(ctx, cfg, func(mgr *contextmgr.Manager) error {
			msgs, err := readConversation(path, stdin)
			if err != nil {
				return err
			}
			return printPrompt(stdout, mgr, msgs)
		})

	case "watch":
		if path == "-" {
			return errors.New("watch: a conversation file is required")
		}
		return withManager(ctx, cfg, func(mgr *contextmgr.Manager) error {
			for u := range conversation.Watch(ctx, path, conversation.WithWatchLogger(logger)) {
				if u.Err != nil {
					logger.Warn("conversation unreadable", slog.String("path", path), slog.Any("error", u.Err))
					continue
				}
				fmt.Fprintln(stdout, "----")
				if err := printPrompt(stdout, mgr, u.Messages); err != nil {
					logger.Warn("render failed", slog.Any("error", err))
				}
			}
			return nil
		})

	case "generate":
		msgs, err := readConversation(path, stdin)
		if err != nil {
			return err
		}
		return generate(ctx, stdout, cfg, opts.byWord, msgs)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadConfig layers the config file, the environment and explicit flags.
func loadConfig(flagSet *pflag.FlagSet, opts options) (llm.Config, error) {
	cfg := llm.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := llm.Load(opts.configPath)
		if err != nil {
			return llm.Config{}, err
		}
		cfg = loaded
	}
	cfg.LoadFromEnv()

	if flagSet.Changed("budget") {
		cfg.MaxAvailableTokens = opts.budget
	}
	if flagSet.Changed("template") && flagSet.Changed("template-file") {
		return llm.Config{}, errors.New("--template and --template-file are mutually exclusive")
	}
	if flagSet.Changed("template") {
		cfg.ChatTemplate = opts.template
		cfg.ChatTemplateFile = ""
	}
	if flagSet.Changed("template-file") {
		cfg.ChatTemplate = ""
		cfg.ChatTemplateFile = opts.tmplFile
	}
	if flagSet.Changed("policy") {
		cfg.Policy = opts.policy
	}
	if flagSet.Changed("cut") {
		cfg.Boundary.Cut = opts.cut
	}
	if flagSet.Changed("tokenizer") {
		cfg.Tokenizer.Kind = llm.TokenizerKind(opts.tokenizer)
	}
	if flagSet.Changed("model") {
		cfg.Backend.Model = opts.model
	}
	if flagSet.Changed("max-tokens") {
		cfg.Generation.MaxTokens = opts.maxTokens
	}
	if flagSet.Changed("temperature") {
		cfg.Generation.Temperature = opts.temperature
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return llm.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// withManager builds the context manager. The backend is started only when
// the sidecar tokenizer needs it.
func withManager(ctx context.Context, cfg llm.Config, fn func(*contextmgr.Manager) error) error {
	if cfg.Tokenizer.Kind != llm.TokenizerSidecar {
		mgr, err := llm.NewManager(cfg, nil)
		if err != nil {
			return err
		}
		return fn(mgr)
	}

	client, err := llm.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client.Manager())
}

func readConversation(path string, stdin io.Reader) ([]provider.Message, error) {
	if path == "-" {
		return conversation.Read(stdin)
	}
	return conversation.Load(path)
}

func printSelection(w io.Writer, mgr *contextmgr.Manager, msgs []provider.Message) error {
	selected, report, err := mgr.SelectWithReport(msgs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Messages []provider.Message `json:"messages"`
		Report   contextmgr.Report  `json:"report"`
	}{selected, report})
}

func printPrompt(w io.Writer, mgr *contextmgr.Manager, msgs []provider.Message) error {
	prompt, err := mgr.BuildPrompt(msgs)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, contextmgr.StripBOS(prompt, mgr.Tokenizer().BOS()))
	return err
}

func generate(ctx context.Context, w io.Writer, cfg llm.Config, byWord bool, msgs []provider.Message) error {
	client, err := llm.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	chunks, err := client.Stream(ctx, msgs)
	if err != nil {
		return err
	}
	if byWord {
		chunks = llm.ByWord(chunks)
	}

	for chunk := range chunks {
		if chunk.Error != nil {
			return chunk.Error
		}
		if _, err := io.WriteString(w, chunk.Content); err != nil {
			return err
		}
		if chunk.Done {
			slog.Debug("generation finished", slog.Any("usage", chunk.Usage))
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `promptctx - fit a conversation into a token budget and render it for a local model

Usage:
  promptctx [flags] <command> [conversation-file]

Commands:
  select    print the selected conversation and a budget report as JSON
  prompt    print the rendered prompt exactly as the backend receives it
  generate  stream a completion for the conversation
  watch     re-render the prompt whenever the conversation file changes
  schema    print the JSON Schema of the configuration file

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
