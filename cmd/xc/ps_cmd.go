package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/banksean/xcd/xcdserver"
)

type PsCmd struct{}

func (c *PsCmd) Run(cctx *Context) error {
	cl, err := cctx.dial()
	if err != nil {
		return fmt.Errorf("xc ps: %w", err)
	}
	defer cl.Close()

	var containers []xcdserver.ContainerSummary
	if err := cl.Call("list_containers", nil, &containers); err != nil {
		return fmt.Errorf("xc ps: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tJID\tSTAGE\tFAULT")
	for _, c := range containers {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.Name, c.Jid, c.Stage, c.Fault)
	}
	return w.Flush()
}
