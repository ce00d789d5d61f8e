// Package ppm is the binary PPM (P6) codec used by the coordinator to load
// input images and persist filtered output.
//
// Only 8-bit rasters (maxval 1..255) are supported. Inputs are sniffed with
// mimetype so that PNG, JPEG and other images are rejected before parsing,
// and gzip-compressed files are decoded transparently. Output paths ending
// in ".gz" are compressed with klauspost/compress.
//
// Example Usage:
//
//	var codec ppm.Codec
//	buf, err := codec.Load("in.ppm")
//	if err != nil {
//		return err
//	}
//	return codec.Store(buf, "out.ppm.gz")
package ppm
