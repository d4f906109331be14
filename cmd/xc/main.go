// Command xc is the thin client that talks to xcd over its control
// socket, grounded on cmd/sand/main.go's kong.CLI skeleton - a top-level
// CLI struct whose fields become kong subcommands, each a Run(*Context)
// method.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"

	"github.com/banksean/xcd/control"
)

type Context struct {
	SocketPath string
}

func (c *Context) dial() (*control.Client, error) {
	return control.Dial(c.SocketPath)
}

type CLI struct {
	SocketPath string `default:"/var/run/xc.sock" placeholder:"<socket-path>" help:"path to xcd's control socket"`

	Run     RunCmd     `cmd:"" help:"instantiate and start a container from an image"`
	Ps      PsCmd      `cmd:"" help:"list containers"`
	Kill    KillCmd    `cmd:"" help:"kill a running container"`
	Commit  CommitCmd  `cmd:"" help:"snapshot a container's root filesystem under a tag"`
	Attach  AttachCmd  `cmd:"" help:"attach to a running container's console"`
	Network NetworkCmd `cmd:"" help:"manage container networks"`
	Doc     DocCmd     `cmd:"" help:"print complete command help formatted as markdown"`
}

func main() {
	var cli CLI
	parser := kong.Must(&cli,
		kong.Configuration(kongyaml.Loader, "/usr/local/etc/xc.yaml", "~/.xc.yaml"),
		kong.Description("xc is the command-line client for xcd, the FreeBSD jail engine."))
	kongcompletion.Register(parser)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = ctx.Run(&Context{SocketPath: cli.SocketPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "xc: %v\n", err)
		os.Exit(1)
	}
}
