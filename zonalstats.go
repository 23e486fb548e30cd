// Package zonalstats computes summary statistics of raster layers over the
// areas covered by vector geometries. Vector layers are read from
// FlatGeobuf or GeoJSON into orb geometries, rasters through the raster
// subpackage, and results come back as one record per geometry.
package zonalstats

import (
	"errors"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
)

// Common errors returned by this package.
var (
	ErrNilGeometry       = errors.New("zonalstats: nil geometry")
	ErrUnsupportedType   = errors.New("zonalstats: unsupported geometry type")
	ErrInvalidData       = errors.New("zonalstats: invalid data")
	ErrNoIndex           = errors.New("zonalstats: file has no spatial index")
	ErrUnsupportedFormat = errors.New("zonalstats: unsupported vector format")
	ErrEmptySource       = errors.New("zonalstats: source has no features")
	ErrFieldNotFound     = errors.New("zonalstats: field not found")
	ErrUnknownStat       = errors.New("zonalstats: unknown statistic")
	ErrCRSMismatch       = errors.New("zonalstats: coordinate reference systems differ")
	ErrInvalidPreprocess = errors.New("zonalstats: invalid preprocess")
)

// DataSourceError reports a vector or raster source that cannot be used:
// it failed to open or parse, holds no features, or lacks a field.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return "zonalstats: " + e.Source + ": " + e.Err.Error()
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// StatFunc computes a custom statistic from the valid pixel values of a
// zone and the properties of its feature. A nil result is reported as null.
type StatFunc func(values []float64, props geojson.Properties) *float64

// Options configures zonal statistics.
type Options struct {
	IDField     string             // Feature property used as record ID (default: feature index)
	Stats       []string           // Requested statistics (default: count min max mean)
	Preprocess  *Preprocess        // Optional filter applied to zone values before stats
	AllTouched  bool               // Include every cell touched by a geometry
	Categorical bool               // Add one pixel count per distinct value
	CategoryMap map[float64]string // Renames categorical keys
	Prefix      string             // Prepended to every stat key
	Band        int                // 1-based band to read (default: 1)
	NoData      *float64           // Overrides the raster nodata value
	AddStats    map[string]StatFunc
	ZoneFunc    func(m *Masked) // Applied to each zone before stats
	RasterOut   bool            // Keep the masked window on each record
	CacheSize   int             // Vector layers kept by the geometry cache (default: 16)

	Logger  *zerolog.Logger // Optional, defaults to a disabled logger
	Metrics *Metrics        // Optional
}

// DefaultOptions returns default options for zonal statistics.
func DefaultOptions() *Options {
	return &Options{
		Band:      1,
		CacheSize: 16,
	}
}

func (o *Options) logger() *zerolog.Logger {
	if o.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return o.Logger
}

// ColumnInfo describes a property column in a vector layer.
type ColumnInfo struct {
	Name        string // Column name
	Type        string // Column type ("Bool", "Int", "Long", "Double", "String", "Json", etc.)
	Title       string // Column title (human-readable)
	Description string // Column description
	Nullable    bool   // Whether the column can contain null values
}

// Header contains metadata about a vector layer.
type Header struct {
	Name          string       // Layer name
	Description   string       // Layer description
	GeometryType  string       // Geometry type ("Point", "Polygon", "Unknown", etc.)
	FeaturesCount uint64       // Number of features in the file
	Envelope      [4]float64   // Bounding box [minX, minY, maxX, maxY]
	CRS           *CRS         // Coordinate reference system
	HasIndex      bool         // Whether the file has a spatial index
	Columns       []ColumnInfo // Property column schema
}
