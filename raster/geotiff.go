package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/image/tiff/lzw"
)

// TIFF and GeoTIFF tags used by the reader.
const (
	tagImageWidth          uint16 = 256
	tagImageLength         uint16 = 257
	tagBitsPerSample       uint16 = 258
	tagCompression         uint16 = 259
	tagStripOffsets        uint16 = 273
	tagSamplesPerPixel     uint16 = 277
	tagRowsPerStrip        uint16 = 278
	tagStripByteCounts     uint16 = 279
	tagPlanarConfiguration uint16 = 284
	tagPredictor           uint16 = 317
	tagTileWidth           uint16 = 322
	tagTileLength          uint16 = 323
	tagTileOffsets         uint16 = 324
	tagTileByteCounts      uint16 = 325
	tagSampleFormat        uint16 = 339
	tagModelPixelScale     uint16 = 33550
	tagModelTiepoint       uint16 = 33922
	tagModelTransformation uint16 = 34264
	tagGeoKeyDirectory     uint16 = 34735
	tagGeoDoubleParams     uint16 = 34736
	tagGeoASCIIParams      uint16 = 34737
	tagGDALNoData          uint16 = 42113
)

// GeoKeys.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyCitation       = 1026
	keyGeographicType = 2048
	keyGeogCitation   = 2049
	keyProjectedType  = 3072
	keyPCSCitation    = 3073

	rasterPixelIsPoint = 2
	modelProjected     = 1
	userDefined        = 32767
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946

	predictorNone       = 1
	predictorHorizontal = 2
)

// fieldSize is the byte width of each TIFF field type, indexed by type.
var fieldSize = [...]int{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8, 0, 0, 0, 8, 8, 8}

type tiffField struct {
	typ   uint16
	count uint64
	raw   []byte
}

func (f tiffField) uints(bo binary.ByteOrder) []uint64 {
	size := fieldSize[f.typ]
	if size == 0 {
		return nil
	}
	out := make([]uint64, 0, f.count)
	for i := 0; i+size <= len(f.raw) && uint64(len(out)) < f.count; i += size {
		b := f.raw[i : i+size]
		switch f.typ {
		case 1, 6, 7:
			out = append(out, uint64(b[0]))
		case 3, 8:
			out = append(out, uint64(bo.Uint16(b)))
		case 4, 9:
			out = append(out, uint64(bo.Uint32(b)))
		case 16, 17, 18:
			out = append(out, bo.Uint64(b))
		default:
			return nil
		}
	}
	return out
}

func (f tiffField) floats(bo binary.ByteOrder) []float64 {
	switch f.typ {
	case 11:
		out := make([]float64, 0, f.count)
		for i := 0; i+4 <= len(f.raw); i += 4 {
			out = append(out, float64(math.Float32frombits(bo.Uint32(f.raw[i:]))))
		}
		return out
	case 12:
		out := make([]float64, 0, f.count)
		for i := 0; i+8 <= len(f.raw); i += 8 {
			out = append(out, math.Float64frombits(bo.Uint64(f.raw[i:])))
		}
		return out
	}
	u := f.uints(bo)
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = float64(v)
	}
	return out
}

func (f tiffField) ascii() string {
	return strings.TrimRight(string(f.raw), "\x00")
}

// decoded is one band of one strip or tile.
type decoded struct {
	ints   []int64
	floats []float64
}

// GeoTIFF is a Dataset backed by a (Big)TIFF file with GeoTIFF tags.
// Decoded strips and tiles are kept in a bounded cache so geometries
// sharing blocks do not decode them twice.
type GeoTIFF struct {
	r      io.ReaderAt
	closer io.Closer
	bo     binary.ByteOrder
	fields map[uint16]tiffField

	width, height int
	spp           int
	bits          int
	format        int
	dtype         DataType
	planar        bool
	compression   int
	predictor     int

	blockW, blockH  int
	across, down    int
	offsets, counts []uint64

	transform Affine
	nodata    float64
	hasNoData bool
	srs       string

	blocks *ccache.Cache[*decoded]
}

// BlockCacheSize is the number of decoded blocks each GeoTIFF keeps.
var BlockCacheSize int64 = 256

// OpenGeoTIFF opens a GeoTIFF file. Close releases the file handle.
func OpenGeoTIFF(path string) (*GeoTIFF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	g, err := NewGeoTIFF(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	g.closer = f
	return g, nil
}

// NewGeoTIFF parses the first image directory of a GeoTIFF.
func NewGeoTIFF(r io.ReaderAt) (*GeoTIFF, error) {
	g := &GeoTIFF{r: r}
	if err := g.readDirectory(); err != nil {
		return nil, err
	}
	if err := g.readLayout(); err != nil {
		return nil, err
	}
	g.readGeoreference()
	g.blocks = ccache.New(ccache.Configure[*decoded]().MaxSize(BlockCacheSize).ItemsToPrune(uint32(BlockCacheSize/8 + 1)))
	return g, nil
}

func (g *GeoTIFF) readDirectory() error {
	var hdr [16]byte
	if _, err := g.r.ReadAt(hdr[:8], 0); err != nil {
		return fmt.Errorf("%w: short header: %v", ErrInvalidData, err)
	}
	switch string(hdr[:2]) {
	case "II":
		g.bo = binary.LittleEndian
	case "MM":
		g.bo = binary.BigEndian
	default:
		return fmt.Errorf("%w: not a TIFF file", ErrInvalidData)
	}

	big := false
	var ifd uint64
	switch g.bo.Uint16(hdr[2:]) {
	case 42:
		ifd = uint64(g.bo.Uint32(hdr[4:]))
	case 43:
		big = true
		if _, err := g.r.ReadAt(hdr[8:16], 8); err != nil {
			return fmt.Errorf("%w: short BigTIFF header", ErrInvalidData)
		}
		ifd = g.bo.Uint64(hdr[8:])
	default:
		return fmt.Errorf("%w: bad TIFF magic", ErrInvalidData)
	}
	if ifd == 0 {
		return fmt.Errorf("%w: no image directory", ErrInvalidData)
	}

	countLen, entryLen, inline := 2, 12, 4
	if big {
		countLen, entryLen, inline = 8, 20, 8
	}
	cb := make([]byte, countLen)
	if _, err := g.r.ReadAt(cb, int64(ifd)); err != nil {
		return fmt.Errorf("%w: reading directory: %v", ErrInvalidData, err)
	}
	var n uint64
	if big {
		n = g.bo.Uint64(cb)
	} else {
		n = uint64(g.bo.Uint16(cb))
	}
	block := make([]byte, int(n)*entryLen)
	if _, err := g.r.ReadAt(block, int64(ifd)+int64(countLen)); err != nil {
		return fmt.Errorf("%w: reading directory entries: %v", ErrInvalidData, err)
	}

	g.fields = make(map[uint16]tiffField, n)
	for i := 0; i < int(n); i++ {
		e := block[i*entryLen : (i+1)*entryLen]
		tag, typ := g.bo.Uint16(e), g.bo.Uint16(e[2:])
		if int(typ) >= len(fieldSize) || fieldSize[typ] == 0 {
			continue
		}
		var count uint64
		var value []byte
		if big {
			count, value = g.bo.Uint64(e[4:]), e[12:20]
		} else {
			count, value = uint64(g.bo.Uint32(e[4:])), e[8:12]
		}
		size := count * uint64(fieldSize[typ])
		f := tiffField{typ: typ, count: count}
		if size <= uint64(inline) {
			f.raw = append([]byte(nil), value[:size]...)
		} else {
			var off uint64
			if big {
				off = g.bo.Uint64(value)
			} else {
				off = uint64(g.bo.Uint32(value))
			}
			f.raw = make([]byte, size)
			if _, err := g.r.ReadAt(f.raw, int64(off)); err != nil {
				return fmt.Errorf("%w: reading tag %d: %v", ErrInvalidData, tag, err)
			}
		}
		g.fields[tag] = f
	}
	return nil
}

func (g *GeoTIFF) tagInt(tag uint16, def int) int {
	if f, ok := g.fields[tag]; ok {
		if v := f.uints(g.bo); len(v) > 0 {
			return int(v[0])
		}
	}
	return def
}

func (g *GeoTIFF) readLayout() error {
	g.width = g.tagInt(tagImageWidth, 0)
	g.height = g.tagInt(tagImageLength, 0)
	if g.width <= 0 || g.height <= 0 {
		return fmt.Errorf("%w: missing image dimensions", ErrInvalidData)
	}
	g.spp = g.tagInt(tagSamplesPerPixel, 1)
	g.bits = g.tagInt(tagBitsPerSample, 1)
	g.format = g.tagInt(tagSampleFormat, 1)
	g.planar = g.tagInt(tagPlanarConfiguration, 1) == 2
	g.compression = g.tagInt(tagCompression, compressionNone)
	g.predictor = g.tagInt(tagPredictor, predictorNone)

	var err error
	if g.dtype, err = sampleType(g.format, g.bits); err != nil {
		return err
	}
	switch g.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupportedFormat, g.compression)
	}
	if g.predictor != predictorNone && (g.predictor != predictorHorizontal || !g.dtype.IsInteger()) {
		return fmt.Errorf("%w: predictor %d for %s", ErrUnsupportedFormat, g.predictor, g.dtype)
	}

	offTag, cntTag := tagStripOffsets, tagStripByteCounts
	if _, tiled := g.fields[tagTileWidth]; tiled {
		g.blockW = g.tagInt(tagTileWidth, 0)
		g.blockH = g.tagInt(tagTileLength, 0)
		offTag, cntTag = tagTileOffsets, tagTileByteCounts
	} else {
		g.blockW = g.width
		g.blockH = min(g.tagInt(tagRowsPerStrip, g.height), g.height)
	}
	if g.blockW <= 0 || g.blockH <= 0 {
		return fmt.Errorf("%w: bad block size %dx%d", ErrInvalidData, g.blockW, g.blockH)
	}
	g.across = (g.width + g.blockW - 1) / g.blockW
	g.down = (g.height + g.blockH - 1) / g.blockH

	g.offsets = g.fields[offTag].uints(g.bo)
	g.counts = g.fields[cntTag].uints(g.bo)
	want := g.across * g.down
	if g.planar {
		want *= g.spp
	}
	if len(g.offsets) < want || len(g.counts) < want {
		return fmt.Errorf("%w: expected %d blocks, found %d offsets", ErrInvalidData, want, len(g.offsets))
	}
	return nil
}

func sampleType(format, bits int) (DataType, error) {
	types := map[[2]int]DataType{
		{1, 8}: Uint8, {1, 16}: Uint16, {1, 32}: Uint32, {1, 64}: Uint64,
		{2, 8}: Int8, {2, 16}: Int16, {2, 32}: Int32, {2, 64}: Int64,
		{3, 32}: Float32, {3, 64}: Float64,
	}
	if dt, ok := types[[2]int{format, bits}]; ok {
		return dt, nil
	}
	return 0, fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupportedFormat, format, bits)
}

func (g *GeoTIFF) readGeoreference() {
	g.transform = Affine{A: 1, E: 1}
	if m := g.fields[tagModelTransformation].floats(g.bo); len(m) >= 8 {
		g.transform = Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	} else {
		scale := g.fields[tagModelPixelScale].floats(g.bo)
		tie := g.fields[tagModelTiepoint].floats(g.bo)
		if len(scale) >= 2 && len(tie) >= 6 {
			g.transform = Affine{
				A: scale[0], C: tie[3] - tie[0]*scale[0],
				E: -scale[1], F: tie[4] + tie[1]*scale[1],
			}
		}
	}

	keys, citations := g.geoKeys()
	if keys[keyRasterType] == rasterPixelIsPoint {
		t := g.transform
		g.transform.C -= 0.5*t.A + 0.5*t.B
		g.transform.F -= 0.5*t.D + 0.5*t.E
	}
	proj, geog := keys[keyProjectedType], keys[keyGeographicType]
	switch {
	case proj > 0 && proj != userDefined:
		g.srs = "EPSG:" + strconv.Itoa(proj)
	case geog > 0 && geog != userDefined && keys[keyModelType] != modelProjected:
		g.srs = "EPSG:" + strconv.Itoa(geog)
	default:
		for _, k := range []int{keyPCSCitation, keyCitation, keyGeogCitation} {
			if c := citations[k]; c != "" {
				g.srs = c
				break
			}
		}
	}

	if f, ok := g.fields[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(f.ascii()), 64); err == nil {
			g.nodata, g.hasNoData = v, true
		}
	}
}

// geoKeys decodes the GeoKeyDirectory into short-valued keys and
// ASCII-valued keys.
func (g *GeoTIFF) geoKeys() (map[int]int, map[int]string) {
	shorts := map[int]int{}
	texts := map[int]string{}
	dir := g.fields[tagGeoKeyDirectory].uints(g.bo)
	if len(dir) < 4 {
		return shorts, texts
	}
	ascii := g.fields[tagGeoASCIIParams].ascii()
	n := int(dir[3])
	for i := 0; i < n && 4+i*4+3 < len(dir); i++ {
		e := dir[4+i*4 : 8+i*4]
		id, loc, count, val := int(e[0]), uint16(e[1]), int(e[2]), int(e[3])
		switch loc {
		case 0:
			shorts[id] = val
		case tagGeoASCIIParams:
			if val >= 0 && val+count <= len(ascii) {
				texts[id] = strings.TrimRight(ascii[val:val+count], "|\x00")
			}
		}
	}
	return shorts, texts
}

func (g *GeoTIFF) Width() int { return g.width }
func (g *GeoTIFF) Height() int { return g.height }
func (g *GeoTIFF) Bands() int { return g.spp }
func (g *GeoTIFF) Transform() Affine { return g.transform }
func (g *GeoTIFF) NoData() (float64, bool) { return g.nodata, g.hasNoData }
func (g *GeoTIFF) DataType() DataType { return g.dtype }
func (g *GeoTIFF) SpatialRef() string { return g.srs }

// Close stops the block cache and closes the underlying file, if any.
func (g *GeoTIFF) Close() error {
	if g.blocks != nil {
		g.blocks.Stop()
		g.blocks = nil
	}
	if g.closer != nil {
		err := g.closer.Close()
		g.closer = nil
		return err
	}
	return nil
}

func (g *GeoTIFF) Read(w Window, band int) (*Block, error) {
	if g.blocks == nil {
		return nil, ErrClosed
	}
	if err := checkRead(g, w, band); err != nil {
		return nil, err
	}
	out := NewBlock(w, g.transform.Offset(w.Col, w.Row), g.dtype)
	out.NoData, out.HasNoData = g.nodata, g.hasNoData

	for br := w.Row / g.blockH; br <= (w.Row+w.Height-1)/g.blockH; br++ {
		for bc := w.Col / g.blockW; bc <= (w.Col+w.Width-1)/g.blockW; bc++ {
			d, err := g.block(band, br, bc)
			if err != nil {
				return nil, err
			}
			r0, r1 := max(w.Row, br*g.blockH), min(w.Row+w.Height, (br+1)*g.blockH)
			c0, c1 := max(w.Col, bc*g.blockW), min(w.Col+w.Width, (bc+1)*g.blockW)
			for r := r0; r < r1; r++ {
				src := (r-br*g.blockH)*g.blockW + (c0 - bc*g.blockW)
				dst := (r-w.Row)*w.Width + (c0 - w.Col)
				n := c1 - c0
				if g.dtype.IsInteger() {
					if src+n > len(d.ints) {
						return nil, fmt.Errorf("%w: block %d,%d is truncated", ErrInvalidData, br, bc)
					}
					copy(out.Ints[dst:dst+n], d.ints[src:src+n])
				} else {
					if src+n > len(d.floats) {
						return nil, fmt.Errorf("%w: block %d,%d is truncated", ErrInvalidData, br, bc)
					}
					copy(out.Floats[dst:dst+n], d.floats[src:src+n])
				}
			}
		}
	}
	return out, nil
}

func (g *GeoTIFF) block(band, br, bc int) (*decoded, error) {
	idx := br*g.across + bc
	if g.planar {
		idx += (band - 1) * g.across * g.down
	}
	key := strconv.Itoa(band) + ":" + strconv.Itoa(idx)
	if item := g.blocks.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	raw := make([]byte, g.counts[idx])
	if _, err := g.r.ReadAt(raw, int64(g.offsets[idx])); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading block %d: %v", ErrInvalidData, idx, err)
	}
	buf, err := g.decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidData, idx, err)
	}
	d := g.decode(buf, band)
	g.blocks.Set(key, d, time.Hour)
	return d, nil
}

func (g *GeoTIFF) decompress(raw []byte) ([]byte, error) {
	switch g.compression {
	case compressionDeflate, compressionDeflateOld:
		z, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		return io.ReadAll(z)
	case compressionLZW:
		z := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer z.Close()
		return io.ReadAll(z)
	default:
		return raw, nil
	}
}

// decode converts a decompressed block into widened samples of one band.
func (g *GeoTIFF) decode(buf []byte, band int) *decoded {
	size := g.bits / 8
	stride := g.spp
	offset := band - 1
	if g.planar {
		stride, offset = 1, 0
	}

	samples := make([]uint64, len(buf)/size)
	for i := range samples {
		b := buf[i*size:]
		switch size {
		case 1:
			samples[i] = uint64(b[0])
		case 2:
			samples[i] = uint64(g.bo.Uint16(b))
		case 4:
			samples[i] = uint64(g.bo.Uint32(b))
		case 8:
			samples[i] = g.bo.Uint64(b)
		}
	}

	if g.predictor == predictorHorizontal {
		mask := uint64(math.MaxUint64)
		if g.bits < 64 {
			mask = 1<<uint(g.bits) - 1
		}
		row := g.blockW * stride
		for start := 0; start+row <= len(samples); start += row {
			for i := start + stride; i < start+row; i++ {
				samples[i] = (samples[i] + samples[i-stride]) & mask
			}
		}
	}

	n := len(samples) / stride
	d := &decoded{}
	if g.dtype.IsInteger() {
		d.ints = make([]int64, n)
		shift := uint(64 - g.bits)
		for p := range d.ints {
			s := samples[p*stride+offset]
			if g.format == 2 {
				d.ints[p] = int64(s<<shift) >> shift
			} else {
				d.ints[p] = int64(s)
			}
		}
		return d
	}
	d.floats = make([]float64, n)
	for p := range d.floats {
		s := samples[p*stride+offset]
		if g.bits == 32 {
			d.floats[p] = float64(math.Float32frombits(uint32(s)))
		} else {
			d.floats[p] = math.Float64frombits(s)
		}
	}
	return d
}
