package filters

import "fmt"

const (
	// MaxImageDimension caps width/height of decoded or rendered rasters so
	// corrupt headers cannot force huge allocations.
	MaxImageDimension = 32768
	// MaxImagePixels bounds the total pixel count (roughly 64MP).
	MaxImagePixels int64 = 64 * 1024 * 1024
)

// ValidateImageBounds rejects raster sizes the engine refuses to allocate.
func ValidateImageBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > MaxImageDimension || height > MaxImageDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if pixels := int64(width) * int64(height); pixels > MaxImagePixels {
		return fmt.Errorf("image pixel count %d exceeds limit %d", pixels, MaxImagePixels)
	}
	return nil
}
