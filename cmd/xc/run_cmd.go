package main

import (
	"fmt"

	"github.com/banksean/xcd/xcdserver"
)

type RunCmd struct {
	Image string            `arg:"" help:"image reference to instantiate, e.g. ghcr.io/org/name:tag"`
	Name  string            `short:"n" help:"name for the new container; generated if omitted"`
	Env   map[string]string `short:"e" help:"environment variables to set in the container, KEY=VALUE"`
	Vnet  bool              `help:"give the container its own vnet network stack"`
}

func (c *RunCmd) Run(cctx *Context) error {
	cl, err := cctx.dial()
	if err != nil {
		return fmt.Errorf("xc run: %w", err)
	}
	defer cl.Close()

	var resp xcdserver.InstantiateResponse
	req := xcdserver.InstantiateRequest{Image: c.Image, Name: c.Name, Env: c.Env, Vnet: c.Vnet}
	if err := cl.Call("instantiate", req, &resp); err != nil {
		return fmt.Errorf("xc run: %w", err)
	}
	fmt.Printf("%s\n", resp.ID)
	return nil
}
