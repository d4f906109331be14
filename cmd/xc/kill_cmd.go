package main

import (
	"fmt"

	"github.com/banksean/xcd/xcdserver"
)

type KillCmd struct {
	Name string `arg:"" help:"name or id of the container to kill"`
}

func (c *KillCmd) Run(cctx *Context) error {
	cl, err := cctx.dial()
	if err != nil {
		return fmt.Errorf("xc kill: %w", err)
	}
	defer cl.Close()

	if err := cl.Call("kill_container", xcdserver.KillContainerRequest{Name: c.Name}, nil); err != nil {
		return fmt.Errorf("xc kill: %w", err)
	}
	fmt.Printf("killed %s\n", c.Name)
	return nil
}
