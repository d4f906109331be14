package main

import (
	"fmt"

	"github.com/banksean/xcd/xcdserver"
)

type CommitCmd struct {
	Name string `arg:"" help:"name or id of the container to commit"`
	Tag  string `arg:"" help:"tag to apply to the committed layer"`
}

func (c *CommitCmd) Run(cctx *Context) error {
	cl, err := cctx.dial()
	if err != nil {
		return fmt.Errorf("xc commit: %w", err)
	}
	defer cl.Close()

	var resp struct {
		CommitID string `json:"commit_id"`
	}
	req := xcdserver.CommitContainerRequest{Name: c.Name, Tag: c.Tag}
	if err := cl.Call("commit_container", req, &resp); err != nil {
		return fmt.Errorf("xc commit: %w", err)
	}
	fmt.Printf("%s\n", resp.CommitID)
	return nil
}
