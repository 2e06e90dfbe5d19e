// Package probe invokes the external metadata tools (exiftool for
// images, ffprobe for videos) and maps their make/model output to a
// hardware category. Probe invocations are time-bounded; any failure
// degrades to HardwareOther so a broken or missing tool never stalls or
// fails a batch.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/layout"
)

// Rule maps a lower-case substring of make+model to a hardware category.
type Rule struct {
	Match    string
	Category layout.Hardware
}

// Result is what a probe learned about one file. RawMeta keeps the
// tool's raw output for audit.
type Result struct {
	Hardware layout.Hardware
	Make     string
	Model    string
	Width    int
	Height   int
	Duration float64
	RawMeta  string
}

type Prober struct {
	ExiftoolBin string
	FfprobeBin  string
	Timeout     time.Duration
	Rules       []Rule
}

// Classify maps a make/model pair through the rule table. First match
// wins; no match or empty make/model is HardwareOther.
func Classify(make, model string, rules []Rule) layout.Hardware {
	s := strings.ToLower(strings.TrimSpace(make + " " + model))
	if s == "" {
		return layout.HardwareOther
	}
	for _, r := range rules {
		if r.Match == "" {
			continue
		}
		if strings.Contains(s, strings.ToLower(r.Match)) {
			return r.Category
		}
	}
	return layout.HardwareOther
}

// Image probes path with exiftool. The returned Result is usable even
// on error: Hardware is then HardwareOther.
func (p *Prober) Image(ctx context.Context, path string) (Result, error) {
	res := Result{Hardware: layout.HardwareOther}
	raw, err := p.run(ctx, p.ExiftoolBin, "-s2", path)
	if err != nil {
		return res, fmt.Errorf("exiftool error: %w", err)
	}
	res.RawMeta = string(raw)
	t, err := ReadTags(bytes.NewReader(raw))
	if err != nil {
		return res, fmt.Errorf("exiftool output parse error: %w", err)
	}
	if v, ok := t["Error"]; ok {
		return res, fmt.Errorf("exiftool error: %s", v)
	}
	res.Make = t.Make()
	res.Model = t.Model()
	if w, h, err := t.Dimensions(); err == nil {
		res.Width, res.Height = w, h
	}
	res.Hardware = Classify(res.Make, res.Model, p.Rules)
	return res, nil
}

// ffprobeOutput mirrors the fields of ffprobe -of json we consume.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// Video probes path with ffprobe and classifies from the container
// tags. Quicktime files carry make/model under the com.apple namespace.
func (p *Prober) Video(ctx context.Context, path string) (Result, error) {
	res := Result{Hardware: layout.HardwareOther}
	raw, err := p.run(ctx, p.FfprobeBin,
		"-v", "quiet", "-of", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return res, fmt.Errorf("ffprobe error: %w", err)
	}
	res.RawMeta = string(raw)
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return res, fmt.Errorf("ffprobe output parse error: %w", err)
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			res.Width, res.Height = s.Width, s.Height
			break
		}
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		res.Duration = d
	}
	res.Make = containerTag(out.Format.Tags, "com.apple.quicktime.make", "make", "manufacturer")
	res.Model = containerTag(out.Format.Tags, "com.apple.quicktime.model", "model", "encoder")
	res.Hardware = Classify(res.Make, res.Model, p.Rules)
	return res, nil
}

func containerTag(tags map[string]string, names ...string) string {
	for _, name := range names {
		for k, v := range tags {
			if strings.EqualFold(k, name) {
				return v
			}
		}
	}
	return ""
}

func (p *Prober) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() != 0 && stdout.Len() > 0 {
		// exiftool exits nonzero but still reports; let the caller
		// read the Error tag out of the output.
		return stdout.Bytes(), nil
	}
	if err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
