package main

import (
	"context"
	"errors"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
)

// The per-stage commands run one pipeline stage on its own, defaulting
// to every location. Each invocation gets its own batch row so the
// import log always has a batch to hang off.

// resolveScope turns an optional -loc flag into the location list to
// operate on.
func (c *command) resolveScope(locFlag string) []catalog.Location {
	if locFlag != "" {
		loc, err := c.Catalog.GetLocation(locFlag)
		if err != nil {
			xlog.Fatalf("location %q lookup error: %v", locFlag, err)
		}
		return []catalog.Location{*loc}
	}
	locs, err := c.Catalog.ListLocations()
	if err != nil {
		xlog.Fatalf("location list error: %v", err)
	}
	return locs
}

type organizeCommand struct {
	command

	Loc string

	locID string
}

func (c *organizeCommand) Prepare() {
	if c.Loc != "" {
		loc, err := c.Catalog.GetLocation(c.Loc)
		if err != nil {
			xlog.Fatalf("location %q lookup error: %v", c.Loc, err)
		}
		c.locID = loc.LocID
	}
}

func (c *organizeCommand) Run(ctx context.Context) error {
	t, err := newBatchTracker(c.Catalog, c.locID, "", "")
	if err != nil {
		return err
	}
	defer t.finish()
	return t.run(ctx, catalog.StageOrganize, func(ctx context.Context) error {
		return c.stageOrganize(ctx, t, c.locID)
	})
}

type foldersCommand struct {
	command

	Loc string

	locs []catalog.Location
}

func (c *foldersCommand) Prepare() {
	c.locs = c.resolveScope(c.Loc)
}

func (c *foldersCommand) Run(ctx context.Context) error {
	t, err := newBatchTracker(c.Catalog, scopeUUID(c.locs), "", "")
	if err != nil {
		return err
	}
	defer t.finish()
	return t.run(ctx, catalog.StageFolder, func(ctx context.Context) error {
		for i := range c.locs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := c.stageFolders(t, &c.locs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

type ingestCommand struct {
	command

	Loc string

	locs []catalog.Location
}

func (c *ingestCommand) Prepare() {
	c.locs = c.resolveScope(c.Loc)
}

func (c *ingestCommand) Run(ctx context.Context) error {
	t, err := newBatchTracker(c.Catalog, scopeUUID(c.locs), "", "")
	if err != nil {
		return err
	}
	defer t.finish()
	return t.run(ctx, catalog.StageIngest, func(ctx context.Context) error {
		for i := range c.locs {
			if err := c.stageIngest(ctx, t, &c.locs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

type verifyCommand struct {
	command

	Loc    string
	DryRun bool

	locs []catalog.Location
}

func (c *verifyCommand) Prepare() {
	c.locs = c.resolveScope(c.Loc)
}

func (c *verifyCommand) Run(ctx context.Context) error {
	t, err := newBatchTracker(c.Catalog, scopeUUID(c.locs), "", "")
	if err != nil {
		return err
	}
	defer t.finish()
	return t.run(ctx, catalog.StageVerify, func(ctx context.Context) error {
		var failed error
		for i := range c.locs {
			err := c.stageVerify(ctx, t, &c.locs[i], c.DryRun)
			if errors.Is(err, errVerificationFailed) {
				// keep checking the other locations, fail at the end
				failed = err
				continue
			}
			if err != nil {
				return err
			}
		}
		return failed
	})
}

// scopeUUID is the batch row's location reference: set for a single
// location scope, empty for an all-locations run.
func scopeUUID(locs []catalog.Location) string {
	if len(locs) == 1 {
		return locs[0].LocID
	}
	return ""
}

type addlocCommand struct {
	command

	Name    string
	State   string
	Type    string
	SubType string
	Address string
	Lat     float64
	Lon     float64
}

func (c *addlocCommand) Prepare() {
	if c.Name == "" || c.State == "" || c.Type == "" {
		xlog.Fatal("location name, state and type required")
	}
	if len(c.State) != 2 {
		xlog.Fatalf("state %q must be a two-letter code", c.State)
	}
}

func (c *addlocCommand) Run(ctx context.Context) error {
	loc := &catalog.Location{
		Name:    c.Name,
		State:   c.State,
		Type:    c.Type,
		SubType: c.SubType,
		Address: c.Address,
		Lat:     c.Lat,
		Lon:     c.Lon,
	}
	if err := c.Catalog.CreateLocation(loc); err != nil {
		return err
	}
	xlog.WithFieldKeyVals("loc_id", loc.LocID, "uuid8", loc.UUID8()).
		Infof("location %q created", loc.Name)
	return nil
}
