package zonalstats

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CRS represents a coordinate reference system.
type CRS struct {
	Org         string // Authority (e.g., "EPSG")
	Code        int    // Authority code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Org:  "EPSG",
		Code: 4326,
		Name: "WGS 84",
	}
}

// Identifier returns "ORG:CODE", or "" when the CRS carries no code.
func (c *CRS) Identifier() string {
	if c == nil || c.Code <= 0 {
		return ""
	}
	org := c.Org
	if org == "" {
		org = "EPSG"
	}
	return org + ":" + strconv.Itoa(c.Code)
}

// String returns the identifier, the WKT or the name, whichever is known first.
func (c *CRS) String() string {
	switch {
	case c == nil:
		return ""
	case c.Identifier() != "":
		return c.Identifier()
	case c.WKT != "":
		return c.WKT
	default:
		return c.Name
	}
}

func (c *CRS) empty() bool {
	return c == nil || (c.Code <= 0 && c.WKT == "" && c.Name == "")
}

// canonicalWKT renders c as WKT for textual comparison.
func (c *CRS) canonicalWKT() string {
	if c.WKT != "" {
		return c.WKT
	}
	if w := knownWKT(c.Identifier()); w != "" {
		return w
	}
	if id := c.Identifier(); id != "" {
		return id
	}
	return c.Name
}

var (
	identifierPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*):(\d+)$`)
	rootIDPattern     = regexp.MustCompile(`^(?:AUTHORITY|ID)\["([^"]+)",\s*"?(\d+)"?\]`)
)

// ParseCRS parses a CRS given as "EPSG:4326" (any case), "+init=epsg:4326",
// an OGC URN or WKT. WKT keeps its root authority as the code. An empty
// string yields a nil CRS.
func ParseCRS(s string) (*CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, "[") {
		return parseWKT(s), nil
	}

	id := strings.TrimPrefix(strings.ToLower(s), "+init=")
	if strings.HasSuffix(id, "crs84") {
		return WGS84(), nil
	}
	if strings.HasPrefix(id, "urn:ogc:def:crs:") {
		// urn:ogc:def:crs:EPSG:<version>:<code>
		parts := strings.Split(s, ":")
		if len(parts) < 6 {
			return nil, fmt.Errorf("%w: crs %q", ErrInvalidData, s)
		}
		id = parts[4] + ":" + parts[len(parts)-1]
	}
	m := identifierPattern.FindStringSubmatch(id)
	if m == nil {
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("%w: crs %q", ErrInvalidData, s)
		}
		return &CRS{Name: s}, nil
	}
	code, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: crs %q", ErrInvalidData, s)
	}
	return &CRS{Org: strings.ToUpper(m[1]), Code: code}, nil
}

func parseWKT(s string) *CRS {
	c := &CRS{WKT: s}
	if i := strings.IndexByte(s, '"'); i >= 0 {
		if j := strings.IndexByte(s[i+1:], '"'); j >= 0 {
			c.Name = s[i+1 : i+1+j]
		}
	}
	// the root authority is the AUTHORITY or ID node at depth one
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth != 1 {
				continue
			}
			if m := rootIDPattern.FindStringSubmatch(strings.TrimSpace(s[i+1:])); m != nil {
				if code, err := strconv.Atoi(m[2]); err == nil {
					c.Org, c.Code = strings.ToUpper(m[1]), code
				}
			}
		}
	}
	return c
}

// CRSSimilarityThreshold is the lowest token sort ratio at which two WKT
// renderings are considered the same CRS.
const CRSSimilarityThreshold = 70

// CheckCRS reports whether a vector layer and a raster share a CRS. When
// both carry an authority code the codes are compared case-insensitively.
// Otherwise both are rendered to WKT, stripped of brackets and compared by
// TokenSortRatio. The reason names both sides when they differ.
func CheckCRS(vector, raster *CRS) (bool, string) {
	if vector.empty() && raster.empty() {
		return true, ""
	}
	if vector.empty() || raster.empty() {
		return false, mismatchReason(orNone(vector), orNone(raster))
	}

	vid, rid := vector.Identifier(), raster.Identifier()
	if vid != "" && rid != "" {
		if strings.EqualFold(vid, rid) {
			return true, ""
		}
		return false, mismatchReason(vid, rid)
	}

	vw := stripBrackets(vector.canonicalWKT())
	rw := stripBrackets(raster.canonicalWKT())
	if TokenSortRatio(vw, rw) < CRSSimilarityThreshold {
		return false, mismatchReason(vw, rw)
	}
	return true, ""
}

func mismatchReason(vector, raster string) string {
	return fmt.Sprintf("Issues: vector and raster have differing CRS. vector: %s, raster: %s", vector, raster)
}

func orNone(c *CRS) string {
	if c.empty() {
		return "<none>"
	}
	return c.String()
}

func stripBrackets(s string) string {
	return strings.NewReplacer("[", "", "]", "").Replace(s)
}

const (
	wgs84Geog = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
	nad83Geog = `GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]]`
	etrsGeog  = `GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6258"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]]`
)

var wktRegistry = map[string]string{
	"EPSG:4326": wgs84Geog,
	"EPSG:4269": nad83Geog,
	"EPSG:4258": etrsGeog,
	"EPSG:3857": `PROJCS["WGS 84 / Pseudo-Mercator",` + wgs84Geog + `,PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","3857"]]`,
	"EPSG:3035": `PROJCS["ETRS89-extended / LAEA Europe",` + etrsGeog + `,PROJECTION["Lambert_Azimuthal_Equal_Area"],PARAMETER["latitude_of_center",52],PARAMETER["longitude_of_center",10],PARAMETER["false_easting",4321000],PARAMETER["false_northing",3210000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","3035"]]`,
}

// knownWKT returns the WKT of a registered EPSG code. WGS 84 UTM zones
// (EPSG:32601-32660 north, 32701-32760 south) are generated.
func knownWKT(id string) string {
	if w, ok := wktRegistry[strings.ToUpper(id)]; ok {
		return w
	}
	var code int
	if _, err := fmt.Sscanf(strings.ToUpper(id), "EPSG:%d", &code); err != nil {
		return ""
	}
	zone, hemi, northing := code-32600, "N", 0
	if code > 32700 {
		zone, hemi, northing = code-32700, "S", 10000000
	}
	if zone < 1 || zone > 60 || (code > 32660 && code < 32701) {
		return ""
	}
	return fmt.Sprintf(`PROJCS["WGS 84 / UTM zone %d%s",%s,PROJECTION["Transverse_Mercator"],`+
		`PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",%d],PARAMETER["scale_factor",0.9996],`+
		`PARAMETER["false_easting",500000],PARAMETER["false_northing",%d],UNIT["metre",1,AUTHORITY["EPSG","9001"]],`+
		`AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","%d"]]`,
		zone, hemi, wgs84Geog, zone*6-183, northing, code)
}
