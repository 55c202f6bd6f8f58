package studio

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/palette"
	"dither-studio/internal/palettecache"
	"dither-studio/internal/protocol"
	"dither-studio/internal/surface"
	"dither-studio/internal/workers"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	size       int
	next       int
	live       int
	sent       [][]byte
	broadcasts [][][]byte
	err        error
}

func newFakeDispatcher(size int) *fakeDispatcher {
	return &fakeDispatcher{size: size, live: size}
}

func (d *fakeDispatcher) SendNext(frame []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	id := d.next
	d.next = (d.next + 1) % d.size
	d.sent = append(d.sent, frame)
	return id, nil
}

func (d *fakeDispatcher) Broadcast(frames ...[]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.broadcasts = append(d.broadcasts, frames)
	return nil
}

func (d *fakeDispatcher) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *fakeDispatcher) opcodes() []protocol.Opcode {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]protocol.Opcode, len(d.sent))
	for i, f := range d.sent {
		ops[i], _ = protocol.RequestOpcode(f)
	}
	return ops
}

func (d *fakeDispatcher) last() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

func (d *fakeDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
	d.broadcasts = nil
}

type recordingListener struct {
	NopListener
	mu         sync.Mutex
	loaded     []LoadedImage
	transforms int
	palettes   [][]palette.RGB
	progress   []string
	histograms []algorithms.Kind
	faults     []int
}

func (l *recordingListener) ImageLoaded(img LoadedImage, _ *image.RGBA) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = append(l.loaded, img)
}

func (l *recordingListener) TransformUpdated(*image.RGBA) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transforms++
}

func (l *recordingListener) PaletteChanged(colors []palette.RGB) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.palettes = append(l.palettes, colors)
}

func (l *recordingListener) QuantizationProgress(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, message)
}

func (l *recordingListener) HistogramUpdated(section algorithms.Kind, _ []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.histograms = append(l.histograms, section)
}

func (l *recordingListener) WorkerFailed(workerID int, _ error, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, workerID)
}

func (l *recordingListener) transformCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transforms
}

type fixture struct {
	session    *Session
	dispatcher *fakeDispatcher
	listener   *recordingListener
}

func newFixture(t *testing.T, configure func(*Options)) fixture {
	t.Helper()
	d := newFakeDispatcher(4)
	l := &recordingListener{}
	opts := Options{
		Catalog:             algorithms.NewCatalog(),
		Surface:             surface.NewRGBA(),
		Dispatcher:          d,
		Listener:            l,
		MaxColors:           8,
		MinColors:           2,
		Palette:             "Primaries",
		LivePreview:         false,
		Acceleration:        false,
		LargeImageDimension: 1200,
	}
	if configure != nil {
		configure(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return fixture{session: s, dispatcher: d, listener: l}
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	return img
}

func (f fixture) load(t *testing.T, w, h int) LoadedImage {
	t.Helper()
	require.NoError(t, f.session.LoadImage(gradient(w, h)))
	st := f.session.State()
	require.NotNil(t, st.Image)
	return *st.Image
}

func (f fixture) reply(generation uint8, msg protocol.Message) error {
	return f.session.HandleReply(workers.Reply{WorkerID: 0, Generation: generation, Frame: msg.Encode()})
}

var optimized = []palette.RGB{
	{R: 10, G: 20, B: 30}, {R: 40, G: 50, B: 60}, {R: 70, G: 80, B: 90}, {R: 100, G: 110, B: 120},
	{R: 130, G: 140, B: 150}, {R: 160, G: 170, B: 180}, {R: 190, G: 200, B: 210}, {R: 220, G: 230, B: 240},
}

func TestLoadImageBroadcastsHeaderThenPixels(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 4, 3)

	assert.Equal(t, LoadedImage{Width: 4, Height: 3, Generation: 1}, img)
	require.Len(t, f.dispatcher.broadcasts, 1)
	frames := f.dispatcher.broadcasts[0]
	require.Len(t, frames, 2)

	header, err := protocol.DecodeLoadImage(frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.LoadImage{Width: 4, Height: 3, Generation: 1}, header)
	assert.Len(t, frames[1], header.PayloadSize())

	// the active section asks for its histogram; live preview is off so nothing else is sent
	assert.Equal(t, []protocol.Opcode{protocol.OpHistogram}, f.dispatcher.opcodes())
	assert.Equal(t, []LoadedImage{img}, f.listener.loaded)
}

func TestGenerationWrapsToZero(t *testing.T) {
	f := newFixture(t, nil)
	f.session.generation = 255

	img := f.load(t, 2, 2)
	assert.Equal(t, uint8(0), img.Generation)

	header, err := protocol.DecodeLoadImage(f.dispatcher.broadcasts[0][0])
	require.NoError(t, err)
	assert.Equal(t, uint8(0), header.Generation)
}

func TestLargeImagesAreResized(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.AutoResize = true
		o.LargeImageDimension = 8
	})
	img := f.load(t, 16, 4)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 2, img.Height)
}

func TestOversizeImageKeepsPreviousImage(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 4, 4)
	pix := make([]byte, 4*4*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	require.NoError(t, f.reply(img.Generation, protocol.PixelsReply{Op: protocol.OpDitherBW, Pixels: pix}))

	err := f.session.LoadImage(image.NewRGBA(image.Rect(0, 0, 65536, 1)))
	require.ErrorIs(t, err, ErrImageTooLarge)

	st := f.session.State()
	require.NotNil(t, st.Image)
	assert.Equal(t, img, *st.Image)
	assert.Len(t, f.dispatcher.broadcasts, 1)
	assert.Equal(t, pix, f.session.Transformed().Pix)
	assert.Equal(t, image.Rect(0, 0, 4, 4), f.session.surface.Bounds())

	f.dispatcher.reset()
	require.NoError(t, f.session.Dispatch())
	req, err := protocol.DecodeDitherBWRequest(f.dispatcher.last())
	require.NoError(t, err)
	assert.Equal(t, uint16(4), req.Width)
	assert.Equal(t, uint16(4), req.Height)

	out := make([]byte, len(pix))
	require.NoError(t, f.reply(img.Generation, protocol.PixelsReply{Op: protocol.OpDitherBW, Pixels: out}))
	assert.Equal(t, out, f.session.Transformed().Pix)
}

func TestOversizePixelationStepIsRolledBack(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.SetPixelation(len(PixelationZooms)-1))
	img := f.load(t, 70000, 1)
	assert.Equal(t, LoadedImage{Width: 1400, Height: 1, Generation: 1}, img)

	err := f.session.SetPixelation(0)
	require.ErrorIs(t, err, ErrImageTooLarge)

	st := f.session.State()
	assert.Equal(t, len(PixelationZooms)-1, st.Pixelation)
	assert.Equal(t, img, *st.Image)
	assert.Equal(t, image.Rect(0, 0, 1400, 1), f.session.surface.Bounds())
	assert.Len(t, f.dispatcher.broadcasts, 1)
}

func TestOversizeFirstImageIsNotDistributed(t *testing.T) {
	f := newFixture(t, nil)
	err := f.session.LoadImage(image.NewRGBA(image.Rect(0, 0, 1, 65536)))
	require.ErrorIs(t, err, ErrImageTooLarge)

	assert.Nil(t, f.session.State().Image)
	assert.Empty(t, f.dispatcher.broadcasts)
	assert.ErrorIs(t, f.session.Dispatch(), ErrNoImage)
}

func TestDispatchWithoutImage(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.session.Dispatch(), ErrNoImage)
	assert.ErrorIs(t, f.session.RequestPalette(), ErrNoImage)
	assert.Empty(t, f.dispatcher.opcodes())
}

func TestPooledDispatchPicksRecordBySubstitution(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 5, 4)
	require.NoError(t, f.session.SetAlgorithm(algorithms.KindBW, "Floyd-Steinberg"))
	require.NoError(t, f.session.SetThreshold(100))
	f.dispatcher.reset()

	require.NoError(t, f.session.Dispatch())
	bw, err := protocol.DecodeDitherBWRequest(f.dispatcher.last())
	require.NoError(t, err)
	alg, err := algorithms.NewCatalog().ByName(algorithms.KindBW, "Floyd-Steinberg")
	require.NoError(t, err)
	assert.Equal(t, protocol.DitherBWRequest{
		Width:       uint16(img.Width),
		Height:      uint16(img.Height),
		AlgorithmID: alg.ID,
		Threshold:   100,
	}, bw)

	red, blue := palette.MustParseHex("#ff0000"), palette.MustParseHex("#0000ff")
	require.NoError(t, f.session.SetSubstitution(red, blue))
	require.NoError(t, f.session.Dispatch())
	full, err := protocol.DecodeDitherRequest(f.dispatcher.last())
	require.NoError(t, err)
	assert.Equal(t, red, full.Black)
	assert.Equal(t, blue, full.White)
	assert.Equal(t, uint16(100), full.Threshold)
}

func TestColorSectionDispatch(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.LivePreview = true })
	f.load(t, 3, 3)
	f.dispatcher.reset()

	require.NoError(t, f.session.SetAlgorithm(algorithms.KindColor, "Atkinson"))
	assert.Empty(t, f.dispatcher.opcodes(), "color changes do not dispatch while the black and white section is shown")

	require.NoError(t, f.session.SetSection(algorithms.KindColor))
	assert.Equal(t, []protocol.Opcode{protocol.OpHueHistogram, protocol.OpDitherColor}, f.dispatcher.opcodes())

	req, err := protocol.DecodeDitherColorRequest(f.dispatcher.last())
	require.NoError(t, err)
	assert.Equal(t, uint16(algorithms.ColorModeLinear), req.ColorModeID)
	if diff := cmp.Diff(f.session.State().Colors, req.Colors); diff != "" {
		t.Errorf("request colors mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, f.session.SetColorMode(algorithms.ColorModeLuma))
	req, err = protocol.DecodeDitherColorRequest(f.dispatcher.last())
	require.NoError(t, err)
	assert.Equal(t, uint16(algorithms.ColorModeLuma), req.ColorModeID)
	assert.Error(t, f.session.SetColorMode(algorithms.ColorMode(9)))
}

func TestAcceleratedDispatchRunsInline(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.LivePreview = true
		o.Acceleration = true
	})
	f.load(t, 6, 6)

	// the default black and white algorithm is per pixel, so no dither request is sent
	assert.Equal(t, []protocol.Opcode{protocol.OpHistogram}, f.dispatcher.opcodes())
	assert.Equal(t, 1, f.listener.transformCount())
	require.NotNil(t, f.session.Transformed())
	assert.Equal(t, image.Rect(0, 0, 6, 6), f.session.Transformed().Rect)

	f.session.SetAcceleration(false)
	require.NoError(t, f.session.Dispatch())
	assert.Equal(t, protocol.OpDitherBW, f.dispatcher.opcodes()[1])
}

func TestDitherReplyReplacesTransform(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 2, 2)

	pix := []byte{
		1, 2, 3, 255, 4, 5, 6, 255,
		7, 8, 9, 255, 10, 11, 12, 255,
	}
	require.NoError(t, f.reply(img.Generation, protocol.PixelsReply{Op: protocol.OpDitherBW, Pixels: pix}))
	assert.Equal(t, pix, f.session.Transformed().Pix)
	assert.Equal(t, 1, f.listener.transformCount())

	other := make([]byte, len(pix))
	err := f.reply(img.Generation-1, protocol.PixelsReply{Op: protocol.OpDitherBW, Pixels: other})
	assert.ErrorIs(t, err, ErrStaleReply)

	err = f.reply(img.Generation, protocol.PixelsReply{Op: protocol.OpDitherColor, Pixels: other})
	assert.ErrorIs(t, err, ErrStaleReply, "color results are dropped while black and white is shown")

	err = f.reply(img.Generation, protocol.PixelsReply{Op: protocol.OpDither, Pixels: other[:4]})
	assert.ErrorIs(t, err, surface.ErrBufferSize)

	assert.Equal(t, pix, f.session.Transformed().Pix)
	assert.Equal(t, 1, f.listener.transformCount())
}

func TestRejectsUnknownReplyOpcodes(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 2, 2)

	for _, frame := range [][]byte{{0x2a}, {byte(protocol.OpLoadImage)}} {
		err := f.session.HandleReply(workers.Reply{Generation: img.Generation, Frame: frame})
		assert.ErrorIs(t, err, protocol.ErrUnknownOpcode)
	}
	err := f.session.HandleReply(workers.Reply{Generation: img.Generation})
	assert.ErrorIs(t, err, protocol.ErrShortFrame)
}

func TestHistogramReplies(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 2, 2)

	bins := make([]byte, 256)
	bins[10] = 100
	require.NoError(t, f.reply(img.Generation, protocol.PixelsReply{Op: protocol.OpHistogram, Pixels: bins}))
	assert.Equal(t, bins, f.session.Histogram(algorithms.KindBW))
	assert.Empty(t, f.session.Histogram(algorithms.KindColor))
	assert.Equal(t, []algorithms.Kind{algorithms.KindBW}, f.listener.histograms)

	f.load(t, 2, 2)
	assert.Empty(t, f.session.Histogram(algorithms.KindBW), "histograms belong to one generation")
}

func TestPaletteRequestIsSentOncePerPendingKey(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, 4, 4)
	f.dispatcher.reset()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.session.RequestPalette())
	}
	require.Equal(t, []protocol.Opcode{protocol.OpOptimizePalette}, f.dispatcher.opcodes())

	req, err := protocol.DecodeOptimizePaletteRequest(f.dispatcher.last())
	require.NoError(t, err)
	assert.Equal(t, protocol.OptimizePaletteRequest{NumColors: 8, ModeID: 0}, req)
}

func TestPaletteProgressThenReplyIsApplied(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 4, 4)
	require.NoError(t, f.session.RequestPalette())
	key := palettecache.Key{NumColors: 8, ModeID: 0}

	for _, p := range []uint8{0, 10, 55, 100} {
		require.NoError(t, f.reply(img.Generation, protocol.OptimizePaletteProgress{ModeID: 0, NumColors: 8, Percentage: p}))
		entry := f.session.cache.Lookup(key)
		assert.Equal(t, palettecache.Pending, entry.State)
		assert.Equal(t, int(p), entry.Progress)
	}
	assert.Equal(t, "Working… 100%", f.session.State().Progress)

	require.NoError(t, f.reply(img.Generation, protocol.OptimizePaletteReply{ModeID: 0, Colors: optimized}))

	st := f.session.State()
	if diff := cmp.Diff(optimized, st.Colors); diff != "" {
		t.Errorf("active palette mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, st.Progress)
	entry := f.session.cache.Lookup(key)
	assert.Equal(t, palettecache.Cached, entry.State)
	assert.True(t, f.session.PaletteOptimized())
	assert.Empty(t, f.session.inFlight)

	assert.Equal(t, []string{
		"Working…", "Working…", "Working… 10%", "Working… 55%", "Working… 100%", "",
	}, f.listener.progress)
	require.NotEmpty(t, f.listener.palettes)
	assert.Equal(t, optimized, f.listener.palettes[len(f.listener.palettes)-1])
}

func TestLateReplyForAbandonedSelectionIsCachedNotApplied(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 4, 4)
	require.NoError(t, f.session.RequestPalette())

	n, err := f.session.SetNumColors(6)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	before := f.session.State().Colors

	require.NoError(t, f.reply(img.Generation, protocol.OptimizePaletteReply{ModeID: 0, Colors: optimized}))
	assert.Equal(t, before, f.session.State().Colors)
	assert.Equal(t, palettecache.Cached, f.session.cache.Lookup(palettecache.Key{NumColors: 8, ModeID: 0}).State)

	f.dispatcher.reset()
	_, err = f.session.SetNumColors(8)
	require.NoError(t, err)
	require.NoError(t, f.session.RequestPalette())
	assert.Empty(t, f.dispatcher.opcodes(), "a cached key sends nothing")
	assert.Equal(t, optimized, f.session.State().Colors)
}

func TestPaletteReplyForKeyThatIsNotPending(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 4, 4)
	before := f.session.State().Colors

	err := f.reply(img.Generation, protocol.OptimizePaletteReply{ModeID: 0, Colors: optimized})
	assert.ErrorIs(t, err, ErrStaleReply)
	err = f.reply(img.Generation, protocol.OptimizePaletteProgress{ModeID: 0, NumColors: 8, Percentage: 50})
	assert.ErrorIs(t, err, ErrStaleReply)

	assert.Equal(t, before, f.session.State().Colors)
	pending, cached := f.session.cache.Len()
	assert.Zero(t, pending)
	assert.Zero(t, cached)
}

func TestImageReplacementClearsPalettes(t *testing.T) {
	f := newFixture(t, nil)
	first := f.load(t, 4, 4)
	require.NoError(t, f.session.RequestPalette())
	require.NoError(t, f.reply(first.Generation, protocol.OptimizePaletteReply{ModeID: 0, Colors: optimized}))
	require.NoError(t, f.session.SetQuantizationMode(algorithms.QuantizePopularity))
	require.NoError(t, f.session.RequestPalette())

	pending, cached := f.session.cache.Len()
	require.Equal(t, 1, pending)
	require.Equal(t, 1, cached)

	second := f.load(t, 4, 4)
	pending, cached = f.session.cache.Len()
	assert.Zero(t, pending)
	assert.Zero(t, cached)

	// the old worker's reply carries the old generation
	err := f.reply(first.Generation, protocol.OptimizePaletteReply{ModeID: uint8(algorithms.QuantizePopularity), Colors: optimized})
	assert.ErrorIs(t, err, ErrStaleReply)

	// a request for the same key on the new image is sent again
	f.dispatcher.reset()
	require.NoError(t, f.session.RequestPalette())
	assert.Equal(t, []protocol.Opcode{protocol.OpOptimizePalette}, f.dispatcher.opcodes())
	assert.NotEqual(t, first.Generation, second.Generation)
}

func TestQuantizationModeChangeRequestsWhenLive(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, 4, 4)
	f.dispatcher.reset()

	require.NoError(t, f.session.SetQuantizationMode(algorithms.QuantizeVarianceMedian))
	assert.Empty(t, f.dispatcher.opcodes())

	require.NoError(t, f.session.SetLivePreview(true))
	f.dispatcher.reset()
	require.NoError(t, f.session.SetQuantizationMode(algorithms.QuantizeMedianCutMode))
	require.Equal(t, []protocol.Opcode{protocol.OpOptimizePalette}, f.dispatcher.opcodes())
	req, err := protocol.DecodeOptimizePaletteRequest(f.dispatcher.last())
	require.NoError(t, err)
	assert.Equal(t, uint16(algorithms.QuantizeMedianCutMode), req.ModeID)
}

func TestLivePreviewGatesDispatch(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, 4, 4)
	f.dispatcher.reset()

	require.NoError(t, f.session.SetAlgorithm(algorithms.KindBW, "Stucki"))
	require.NoError(t, f.session.SetThreshold(42))
	assert.Empty(t, f.dispatcher.opcodes())

	require.NoError(t, f.session.SetLivePreview(true))
	assert.Equal(t, []protocol.Opcode{protocol.OpDitherBW}, f.dispatcher.opcodes())

	require.NoError(t, f.session.SetThreshold(43))
	assert.Len(t, f.dispatcher.opcodes(), 2)
}

func TestNumColorsIsClamped(t *testing.T) {
	f := newFixture(t, nil)

	n, err := f.session.SetNumColors(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.session.SetNumColors(99)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	st := f.session.State()
	assert.Equal(t, 2, st.MinColors)
	assert.Equal(t, 8, st.MaxColors)
}

func TestLoadPalette(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.LoadPalette("Rust"))
	rust, _ := palette.Lookup("Rust")
	assert.Equal(t, rust.Colors, f.session.State().Colors)
	assert.Error(t, f.session.LoadPalette("Nope"))
}

func TestCustomColorsSeedPalette(t *testing.T) {
	custom := []palette.RGB{palette.MustParseHex("#102030"), palette.MustParseHex("#405060")}
	f := newFixture(t, func(o *Options) { o.Colors = custom })

	st := f.session.State()
	require.Len(t, st.Colors, 8)
	for i, c := range st.Colors {
		assert.Equal(t, custom[i%2], c, "slot %d", i)
	}
}

func TestFaultReleasesPendingKeys(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, 4, 4)
	f.dispatcher.reset()
	require.NoError(t, f.session.RequestPalette())
	workerID := f.session.inFlight[f.session.currentKey()]

	f.dispatcher.live = 3
	f.session.HandleFault(workers.Fault{WorkerID: workerID, Err: errors.New("boom")})

	assert.Equal(t, palettecache.Absent, f.session.cache.Lookup(f.session.currentKey()).State)
	assert.False(t, f.session.PaletteOptimized())
	assert.Equal(t, []int{workerID}, f.listener.faults)

	require.NoError(t, f.session.RequestPalette())
	assert.Len(t, f.dispatcher.opcodes(), 2, "a released key is requested again")
}

func TestDispatchErrorsAreReturned(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, 4, 4)
	f.dispatcher.err = workers.ErrNoWorkers

	assert.ErrorIs(t, f.session.Dispatch(), workers.ErrNoWorkers)
	assert.ErrorIs(t, f.session.RequestPalette(), workers.ErrNoWorkers)
	assert.Equal(t, palettecache.Absent, f.session.cache.Lookup(f.session.currentKey()).State)
}

func TestPixelation(t *testing.T) {
	assert.Equal(t, 100, PixelationZoom(100, 100))
	assert.Equal(t, 50, PixelationZoom(100*100, 50))
	assert.Equal(t, 35, PixelationZoom(1000*1000, 50))
	assert.Equal(t, 100, PixelationZoom(0, 50))

	f := newFixture(t, nil)
	first := f.load(t, 10, 10)
	require.NoError(t, f.session.SetPixelation(3))

	st := f.session.State()
	require.NotNil(t, st.Image)
	assert.Equal(t, LoadedImage{Width: 5, Height: 5, Generation: first.Generation + 1}, *st.Image)
	require.Len(t, f.dispatcher.broadcasts, 2)
	header, err := protocol.DecodeLoadImage(f.dispatcher.broadcasts[1][0])
	require.NoError(t, err)
	assert.Equal(t, uint16(5), header.Width)

	assert.Error(t, f.session.SetPixelation(len(PixelationZooms)))
}

func TestRunAppliesRepliesUntilCancelled(t *testing.T) {
	f := newFixture(t, nil)
	img := f.load(t, 1, 1)

	replies := make(chan workers.Reply)
	faults := make(chan workers.Fault)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx, replies, faults) }()

	replies <- workers.Reply{Generation: img.Generation, Frame: protocol.PixelsReply{Op: protocol.OpDitherBW, Pixels: []byte{9, 9, 9, 255}}.Encode()}
	replies <- workers.Reply{Generation: img.Generation + 7, Frame: []byte{byte(protocol.OpDitherBW)}}
	faults <- workers.Fault{WorkerID: 2, Err: errors.New("boom")}

	assert.Eventually(t, func() bool {
		f.listener.mu.Lock()
		defer f.listener.mu.Unlock()
		return len(f.listener.faults) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte{9, 9, 9, 255}, f.session.Transformed().Pix)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
