package probe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat-sub000/layout"
)

var testRules = []Rule{
	{Match: "gopro", Category: layout.HardwareAction},
	{Match: "dji", Category: layout.HardwareDrone},
	{Match: "garmin", Category: layout.HardwareDashCam},
	{Match: "apple", Category: layout.HardwarePhone},
	{Match: "kodak", Category: layout.HardwareFilm},
	{Match: "canon", Category: layout.HardwareCamera},
}

func TestReadTags(t *testing.T) {
	out := strings.Join([]string{
		"FileName: IMG_0001.JPG",
		"Make: Apple",
		"Model: iPhone 12 Pro",
		"ImageWidth: 4032",
		"ImageHeight: 3024",
	}, "\n")
	tags, err := ReadTags(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "Apple", tags.Make())
	assert.Equal(t, "iPhone 12 Pro", tags.Model())

	w, h, err := tags.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 4032, w)
	assert.Equal(t, 3024, h)
}

func TestReadTagsKeepsFirstDuplicate(t *testing.T) {
	tags, err := ReadTags(strings.NewReader("Make: Canon\nMake: Nikon\n"))
	require.NoError(t, err)
	assert.Equal(t, "Canon", tags.Make())
}

func TestReadTagsInvalidFormat(t *testing.T) {
	_, err := ReadTags(strings.NewReader("not a tag line"))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestTagsDimensionsMissing(t *testing.T) {
	tags := Tags{"Make": "Canon"}
	_, _, err := tags.Dimensions()
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		make, model string
		want        layout.Hardware
	}{
		{"Apple", "iPhone 12 Pro", layout.HardwarePhone},
		{"GoPro", "HERO9 Black", layout.HardwareAction},
		{"DJI", "FC3582", layout.HardwareDrone},
		{"Garmin", "Dash Cam 57", layout.HardwareDashCam},
		{"Eastman Kodak Company", "KODAK EKTAR H35", layout.HardwareFilm},
		{"Canon", "Canon EOS R5", layout.HardwareCamera},
		// model alone can carry the match
		{"", "DJI Mini 3", layout.HardwareDrone},
		{"Acme", "Widget", layout.HardwareOther},
		{"", "", layout.HardwareOther},
	}
	for _, tt := range tests {
		got := Classify(tt.make, tt.model, testRules)
		assert.Equal(t, tt.want, got, "make %q model %q", tt.make, tt.model)
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Match: "canon", Category: layout.HardwareCamera},
		{Match: "can", Category: layout.HardwareFilm},
	}
	assert.Equal(t, layout.HardwareCamera, Classify("Canon", "", rules))
}

func TestClassifyEmptyRuleSkipped(t *testing.T) {
	rules := []Rule{{Match: "", Category: layout.HardwareFilm}}
	assert.Equal(t, layout.HardwareOther, Classify("Canon", "", rules))
}

func TestImageMissingToolDegrades(t *testing.T) {
	p := &Prober{ExiftoolBin: "exiftool-definitely-not-installed", Timeout: time.Second, Rules: testRules}
	res, err := p.Image(context.Background(), "whatever.jpg")
	assert.Error(t, err)
	assert.Equal(t, layout.HardwareOther, res.Hardware)
}

func TestImageHungToolTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	bin := filepath.Join(t.TempDir(), "exiftool-hang.sh")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nsleep 10\n"), 0755))

	p := &Prober{ExiftoolBin: bin, Timeout: 100 * time.Millisecond, Rules: testRules}
	start := time.Now()
	res, err := p.Image(context.Background(), "whatever.jpg")
	assert.Error(t, err)
	assert.Equal(t, layout.HardwareOther, res.Hardware)
	assert.Less(t, time.Since(start), 5*time.Second, "timeout must cut the hung tool off")
}

func TestVideoMissingToolDegrades(t *testing.T) {
	p := &Prober{FfprobeBin: "ffprobe-definitely-not-installed", Timeout: time.Second, Rules: testRules}
	res, err := p.Video(context.Background(), "whatever.mp4")
	assert.Error(t, err)
	assert.Equal(t, layout.HardwareOther, res.Hardware)
}

func TestContainerTagCaseInsensitive(t *testing.T) {
	tags := map[string]string{"Com.Apple.QuickTime.Make": "Apple"}
	assert.Equal(t, "Apple", containerTag(tags, "com.apple.quicktime.make", "make"))
}
