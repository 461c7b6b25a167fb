// Command parley runs multi-agent conversations from a deployment manifest.
//
// Usage:
//
//	parley run scheduling_agent "What time is it?"
//	parley agents --config parley.yaml
//	parley sessions --config parley.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Send a message to an agent and print its answer."`
	Agents   AgentsCmd   `cmd:"" help:"List the agents of the manifest."`
	Sessions SessionsCmd `cmd:"" help:"Connect the manifest's MCP servers and show session state."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to the deployment manifest." default:"parley.yaml" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error). Overrides the manifest."`
	LogFormat string `name:"log-format" help:"Log format (text or json). Overrides the manifest."`
}

// buildRuntime loads the manifest and wires a full Parley instance, with
// agent output going to sink when one is given.
func buildRuntime(ctx context.Context, cli *CLI, sink core.OutputSink) (*parley.Parley, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}

	return parley.NewFromConfig(ctx, cfg, func(o *parley.Options) {
		if sink != nil {
			o.Sink = sink
		}
	})
}

// RunCmd sends one message to an agent and streams the answer to stdout.
type RunCmd struct {
	Agent   string `arg:"" help:"Agent to address, by UUID or display name."`
	Message string `arg:"" help:"The user message."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	p, err := buildRuntime(ctx, cli, core.NewWriterSink(os.Stdout))
	if err != nil {
		return err
	}
	defer p.Shutdown()

	_, err = p.Run(ctx, c.Agent, c.Message)
	return err
}

// AgentsCmd lists the agents declared in the manifest without connecting
// any backends.
type AgentsCmd struct{}

func (c *AgentsCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	for _, a := range cfg.Agents {
		id := a.ID
		if id == "" {
			id = "(generated)"
		}
		model := a.Model
		if model == "" {
			model = "(default)"
		}
		fmt.Printf("%-36s  %-24s  %s/%s\n", id, a.Name, a.Provider, model)
	}
	return nil
}

// SessionsCmd connects the manifest's MCP servers and reports the state of
// every pooled session.
type SessionsCmd struct{}

func (c *SessionsCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := buildRuntime(ctx, cli, nil)
	if err != nil {
		return err
	}
	defer p.Shutdown()

	infos := p.MCPSessions()
	if len(infos) == 0 {
		fmt.Println("no mcp sessions")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  state=%s tools=%d resources=%d last_used=%s\n",
			info.ServerPath, info.State, info.ToolCount, info.ResourceCount,
			info.LastUsed.Format(time.RFC3339))
	}
	return nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("parley version %s\n", version)
	return nil
}

func main() {
	_ = config.LoadEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("parley"),
		kong.Description("Parley - multi-agent conversations over one shared tool catalog"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
