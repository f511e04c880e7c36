package publish

import (
	"bytes"
	"context"
	"errors"
	"html"
	"image"
	"image/color"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/types"
	"github.com/T1murKa41/pixilgnang/internal/types/typestest"
)

var dest = delivery.Destination{Key: "pg", ChatID: -100, Title: "PG"}

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(100)))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func assertColor(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	r, g, b, _ := img.At(x, y).RGBA()
	got := [3]int{int(r >> 8), int(g >> 8), int(b >> 8)}
	exp := [3]int{int(want.R), int(want.G), int(want.B)}
	for i := range got {
		diff := got[i] - exp[i]
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, 24, "pixel (%d,%d) = %v, want ~%v", x, y, got, exp)
	}
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	red   = color.NRGBA{255, 0, 0, 255}
)

func TestWatermarkBottomRight(t *testing.T) {
	w, err := NewWatermarker(solid(60, 30, red))
	require.NoError(t, err)

	out, err := w.Apply(encodeJPEG(t, solid(600, 400, white)))
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 600, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())

	// Mark is 100x50 (600/6, aspect kept) at (490,340)-(590,390).
	assertColor(t, img, 540, 365, red)
	assertColor(t, img, 10, 10, white)
	assertColor(t, img, 596, 396, white)
	assertColor(t, img, 470, 365, white)
}

func TestWatermarkCachesBySize(t *testing.T) {
	w, err := NewWatermarker(solid(60, 30, red))
	require.NoError(t, err)

	photo := encodeJPEG(t, solid(600, 400, white))
	_, err = w.Apply(photo)
	require.NoError(t, err)
	_, err = w.Apply(photo)
	require.NoError(t, err)
	assert.Equal(t, 1, w.scaled.Len())

	_, err = w.Apply(encodeJPEG(t, solid(1200, 800, white)))
	require.NoError(t, err)
	assert.Equal(t, 2, w.scaled.Len())
}

func TestWatermarkTinyPhoto(t *testing.T) {
	w, err := NewWatermarker(solid(60, 30, red))
	require.NoError(t, err)

	out, err := w.Apply(encodeJPEG(t, solid(4, 4, white)))
	require.NoError(t, err)
	assertColor(t, decode(t, out), 2, 2, white)
}

func TestWatermarkRejectsGarbage(t *testing.T) {
	w, err := NewWatermarker(solid(60, 30, red))
	require.NoError(t, err)

	_, err = w.Apply([]byte("not an image"))
	assert.Error(t, err)
}

func TestLoadWatermarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mark.png")
	require.NoError(t, imaging.Save(solid(20, 10, red), path))

	w, err := LoadWatermarker(path)
	require.NoError(t, err)
	assert.Equal(t, 20, w.mark.Bounds().Dx())

	_, err = LoadWatermarker(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func submission(items ...types.MediaItem) *types.PendingSubmission {
	return &types.PendingSubmission{
		ID:            "sub1",
		Items:         items,
		Caption:       "hello <world>",
		SubmitterID:   7,
		SubmitterName: "Ann & Bob",
	}
}

func TestCaption(t *testing.T) {
	got := Caption(submission())
	assert.Equal(t, "hello &lt;world&gt;\nBy <a href=\"tg://user?id=7\">Ann &amp; Bob</a>", got)
}

func TestCaptionFitsTelegramLimit(t *testing.T) {
	sub := submission()
	sub.SubmitterName = "Alexander Konstantinov"
	sub.Caption = strings.Repeat("x", 1000)

	got := Caption(sub)
	visible := html.UnescapeString(regexp.MustCompile(`<[^>]+>`).ReplaceAllString(got, ""))
	assert.Equal(t, MaxCaptionLength, TextLength(visible))
	assert.True(t, strings.HasSuffix(visible, "…\nBy Alexander Konstantinov"), visible)

	short := submission()
	short.Caption = "fits"
	assert.Contains(t, Caption(short), "fits\nBy ")
}

func TestTextLengthCountsUTF16(t *testing.T) {
	assert.Equal(t, 3, TextLength("abc"))
	assert.Equal(t, 2, TextLength("яя"))
	assert.Equal(t, 2, TextLength("😀"))
	assert.Equal(t, MaxCaptionLength-len("\nBy anonymous"), CaptionRoom(""))
}

func TestPublishWatermarksPhotosOnly(t *testing.T) {
	m := typestest.NewMessenger()
	m.Files["p1"] = encodeJPEG(t, solid(600, 400, white))
	w, err := NewWatermarker(solid(60, 30, red))
	require.NoError(t, err)

	p := NewPipeline(m, w)
	sub := submission(
		types.MediaItem{Kind: types.MediaPhoto, FileID: "p1"},
		types.MediaItem{Kind: types.MediaVideo, FileID: "v1"},
	)

	ref, err := p.Publish(context.Background(), sub, dest)
	require.NoError(t, err)
	assert.Equal(t, "pg", ref.Destination)
	assert.Equal(t, int64(-100), ref.ChatID)
	require.Len(t, ref.MessageIDs, 2, "every album message is reported")
	assert.Equal(t, ref.MessageIDs[0], ref.MessageID)

	require.Len(t, m.Groups, 1)
	group := m.Groups[0]
	assert.Equal(t, int64(-100), group.ChatID)
	require.Len(t, group.Media, 2)

	assert.Empty(t, group.Media[0].FileID)
	assert.NotEmpty(t, group.Media[0].Data)
	assert.Equal(t, Caption(sub), group.Media[0].Caption)
	assert.True(t, group.Media[0].HTML)

	assert.Equal(t, "v1", group.Media[1].FileID)
	assert.Empty(t, group.Media[1].Caption)
	assert.Equal(t, []string{"p1"}, m.Fetched)
}

func TestPublishWithoutWatermark(t *testing.T) {
	m := typestest.NewMessenger()
	p := NewPipeline(m, nil)

	_, err := p.Publish(context.Background(), submission(types.MediaItem{Kind: types.MediaPhoto, FileID: "p1"}), dest)
	require.NoError(t, err)
	assert.Equal(t, "p1", m.Groups[0].Media[0].FileID)
	assert.Empty(t, m.Fetched)
}

func TestPublishFailures(t *testing.T) {
	w, err := NewWatermarker(solid(60, 30, red))
	require.NoError(t, err)

	t.Run("fetch", func(t *testing.T) {
		m := typestest.NewMessenger()
		_, err := NewPipeline(m, w).Publish(context.Background(),
			submission(types.MediaItem{Kind: types.MediaPhoto, FileID: "missing"}), dest)
		var pe *types.PublishError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "pg", pe.Destination)
		assert.Empty(t, m.Groups)
	})

	t.Run("send", func(t *testing.T) {
		m := typestest.NewMessenger()
		m.FailGroup = errors.New("Bad Request: wrong file identifier")
		_, err := NewPipeline(m, w).Publish(context.Background(),
			submission(types.MediaItem{Kind: types.MediaVideo, FileID: "v"}), dest)
		var pe *types.PublishError
		assert.True(t, errors.As(err, &pe))
	})

	t.Run("unsupported", func(t *testing.T) {
		m := typestest.NewMessenger()
		_, err := NewPipeline(m, w).Publish(context.Background(),
			submission(types.MediaItem{Kind: types.MediaOther, FileID: "x"}), dest)
		assert.Error(t, err)
		assert.Empty(t, m.Groups)
	})

	t.Run("empty", func(t *testing.T) {
		m := typestest.NewMessenger()
		_, err := NewPipeline(m, w).Publish(context.Background(), submission(), dest)
		assert.Error(t, err)
	})
}
