// Package vendorcodec implements the format-specific sensor-sample
// entropy decoders that sit alongside the shared Lossless-JPEG codec
// (package ljpeg) and the packed/simple unpackers (package rawbits):
// Canon CRX (wavelet level 0 only), Panasonic v6/v8, Pentax's Huffman
// codec, Samsung SRW1/2/3, and Kodak RADC. All of them are built on the
// bit pumps in package bitstream; the Pentax decoder additionally reuses
// ljpeg's Huffman tables, the same sharing the formats themselves show.
package vendorcodec
