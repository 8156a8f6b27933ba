// internal/domain/geom/fingerprint.go

package geom

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// coordPrecision is the number of decimal places a coordinate contributes to
// a fingerprint. Seven decimals is roughly centimetre resolution, well below
// anything a map client can express, so two renderings of the same polygon
// always canonicalize to the same bytes.
const coordPrecision = 7

// Fingerprint computes a stable content hash for a (polygon, category) pair.
// Clients use it to match push updates against the view that triggered them,
// so it must not change when the same polygon is re-serialized with
// different numeric formatting.
func Fingerprint(p Polygon, category string) string {
	var b strings.Builder
	b.WriteString(category)
	for _, pt := range p {
		b.WriteString("|")
		b.WriteString(strconv.FormatFloat(pt.Lng, 'f', coordPrecision, 64))
		b.WriteString(",")
		b.WriteString(strconv.FormatFloat(pt.Lat, 'f', coordPrecision, 64))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
