package main

import (
	"context"

	"github.com/goinsane/xlog"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/layout"
	"github.com/bizzlechizzle/aupat-sub000/probe"
)

// stageOrganize classifies every unorganized record by probing its
// metadata: exiftool for images, ffprobe for videos. Documents carry no
// capture hardware and go straight to the other bucket. A probe that is
// missing, times out or cannot read the file degrades the record to
// other instead of failing the batch. Empty locID means all locations.
func (c *command) stageOrganize(ctx context.Context, t *batchTracker, locID string) error {
	for _, mt := range []layout.MediaType{layout.MediaImage, layout.MediaVideo, layout.MediaDocument} {
		if err := c.organizeType(ctx, t, mt, locID); err != nil {
			return err
		}
	}
	return nil
}

func (c *command) organizeType(ctx context.Context, t *batchTracker, mt layout.MediaType, locID string) error {
	recs, err := c.Catalog.ListUnclassified(mt, locID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	classified := make(map[layout.Hardware]int64, len(layout.AllHardware))
	for i, rec := range recs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var res probe.Result
		var probeErr error
		switch mt {
		case layout.MediaImage:
			res, probeErr = c.Prober.Image(ctx, rec.FilePath)
		case layout.MediaVideo:
			res, probeErr = c.Prober.Video(ctx, rec.FilePath)
		default:
			res = probe.Result{Hardware: layout.HardwareOther}
		}
		if probeErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			xlog.V(1).Warningf("file %q probe error, degrading to %s: %v",
				rec.FileName, layout.HardwareOther, probeErr)
			res.Hardware = layout.HardwareOther
		}

		err := c.Catalog.SetMediaHardware(mt, rec.Hash, res.Hardware,
			res.RawMeta, res.Width, res.Height, res.Duration)
		if err != nil {
			return err
		}
		classified[res.Hardware]++

		entry := catalog.ImportLog{
			FilePath: rec.FilePath, FileName: rec.FileName, FileSHA256: rec.Hash,
			Stage: catalog.StageOrganize, Status: catalog.LogSuccess,
			MediaType: string(mt), HardwareCategory: string(res.Hardware),
		}
		if probeErr != nil {
			entry.ErrorMessage = probeErr.Error()
		}
		t.logFile(entry)

		xlog.V(1).Infof("organize %s %d/%d: %q -> %s", mt, i+1, len(recs), rec.FileName, res.Hardware)
	}

	fields := make([]interface{}, 0, 2*len(layout.AllHardware))
	for _, hw := range layout.AllHardware {
		fields = append(fields, string(hw), classified[hw])
	}
	xlog.WithFieldKeyVals(fields...).Infof("%d %s records organized", len(recs), mt)
	return nil
}
