// Command alimgen runs the KakaoTalk AlimTalk template generation service.
//
// Usage:
//
//	alimgen serve
//	alimgen generate "파이썬 강의 수강 신청 완료 안내 메시지"
//	alimgen index --force
//	alimgen validate "안녕하세요 #{수신자명}님, 예약이 확정되었습니다."
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/space-cap/alimgen"
	"github.com/space-cap/alimgen/compliance"
	"github.com/space-cap/alimgen/config"
	"github.com/space-cap/alimgen/model"
	"github.com/space-cap/alimgen/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Generate GenerateCmd `cmd:"" help:"Generate one template from the command line."`
	Validate ValidateCmd `cmd:"" help:"Check an existing template against policy."`
	Index    IndexCmd    `cmd:"" help:"Build the dense vector index over the policy corpus."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("alimgen %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides ALIMGEN_LISTEN_ADDR)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger := load(cli)
	svc, err := alimgen.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Index(ctx, false); err != nil {
		logger.Warn("Dense indexing failed, serving sparse-only", "error", err)
	}

	addr := cfg.ListenAddr
	if c.Addr != "" {
		addr = c.Addr
	}
	return server.New(svc, logger).ListenAndServe(ctx, addr)
}

// GenerateCmd runs the pipeline once and prints the result as JSON.
type GenerateCmd struct {
	Request      string `arg:"" help:"The template request, in natural language."`
	BusinessType string `name:"business-type" help:"Business type hint (교육, 의료, ...)."`
	ServiceType  string `name:"service-type" help:"Service type hint (신청, 예약, ...)."`
	Tone         string `help:"Tone hint (정중한, 친근한, 공식적인)."`
}

func (c *GenerateCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger := load(cli)
	svc, err := alimgen.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Index(ctx, false); err != nil {
		logger.Warn("Dense indexing failed, generating sparse-only", "error", err)
	}

	result := svc.GenerateTemplate(ctx, model.Request{
		UserRequest:  c.Request,
		BusinessType: c.BusinessType,
		ServiceType:  c.ServiceType,
		Tone:         c.Tone,
	})
	return printJSON(result)
}

// ValidateCmd checks a template against policy and prints the report.
type ValidateCmd struct {
	Template string `arg:"" help:"The template text to check."`
	Button   string `help:"Button label, if any."`
	JSON     bool   `help:"Print the raw verdict as JSON instead of the report."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger := load(cli)
	svc, err := alimgen.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	verdict := svc.ValidateTemplate(ctx, c.Template, c.Button)
	if c.JSON {
		return printJSON(verdict)
	}
	fmt.Println(compliance.Report(verdict))
	return nil
}

// IndexCmd (re)builds the dense vector index.
type IndexCmd struct {
	Force bool `help:"Drop and rebuild the collection even if populated."`
}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger := load(cli)
	svc, err := alimgen.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Index(ctx, c.Force)
}

// load assembles configuration and logging shared by all commands.
func load(cli *CLI) (*config.Config, *slog.Logger) {
	_ = config.LoadDotEnv()

	cfg := config.FromEnv()
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("alimgen"),
		kong.Description("KakaoTalk AlimTalk template generation service"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
