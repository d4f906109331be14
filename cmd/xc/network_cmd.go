package main

import (
	"fmt"

	"github.com/banksean/xcd/xcdserver"
)

type NetworkCmd struct {
	Create NetworkCreateCmd `cmd:"" help:"define a new network"`
	Ls     NetworkLsCmd     `cmd:"" help:"list networks"`
}

type NetworkCreateCmd struct {
	Name   string `arg:"" help:"network name"`
	Bridge string `arg:"" help:"bridge interface backing this network"`
	Subnet string `arg:"" help:"CIDR subnet to allocate addresses from"`
}

func (c *NetworkCreateCmd) Run(cctx *Context) error {
	cl, err := cctx.dial()
	if err != nil {
		return fmt.Errorf("xc network create: %w", err)
	}
	defer cl.Close()

	req := xcdserver.CreateNetworkRequest{Name: c.Name, Bridge: c.Bridge, Subnet: c.Subnet}
	if err := cl.Call("create_network", req, nil); err != nil {
		return fmt.Errorf("xc network create: %w", err)
	}
	fmt.Printf("created network %s\n", c.Name)
	return nil
}

type NetworkLsCmd struct{}

func (c *NetworkLsCmd) Run(cctx *Context) error {
	cl, err := cctx.dial()
	if err != nil {
		return fmt.Errorf("xc network ls: %w", err)
	}
	defer cl.Close()

	var names []string
	if err := cl.Call("list_networks", nil, &names); err != nil {
		return fmt.Errorf("xc network ls: %w", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
