package main

import (
	"context"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/config"
	"github.com/bizzlechizzle/aupat-sub000/probe"
)

type command struct {
	Config  *config.Config
	Catalog *catalog.Catalog
	Prober  *probe.Prober
}

func (c *command) Command() *command {
	return c
}

func (c *command) Prepare() {
	panic("not implemented")
}

func (c *command) Run(ctx context.Context) error {
	panic("not implemented")
}
