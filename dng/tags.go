// Package dng assembles a DNG 1.4 file from a decoded
// rawimage.RawImage. The IFD/pointer-area assembly is built on
// tiff.Builder, tile encoding on ljpeg.Encode, and preview/thumbnail
// generation on golang.org/x/image/draw plus the standard image/jpeg
// encoder.
package dng

import "github.com/rawkit/rawkit/tiff"

// Baseline TIFF and DNG tags the writer emits.
const (
	tagNewSubfileType     tiff.Tag = 254
	tagImageWidth         tiff.Tag = 256
	tagImageLength        tiff.Tag = 257
	tagBitsPerSample      tiff.Tag = 258
	tagCompression        tiff.Tag = 259
	tagPhotometric        tiff.Tag = 262
	tagMake               tiff.Tag = 271
	tagModel              tiff.Tag = 272
	tagStripOffsets       tiff.Tag = 273
	tagOrientation        tiff.Tag = 274
	tagSamplesPerPixel    tiff.Tag = 277
	tagRowsPerStrip       tiff.Tag = 278
	tagStripByteCounts    tiff.Tag = 279
	tagPlanarConfig       tiff.Tag = 284
	tagSoftware           tiff.Tag = 305
	tagDateTime           tiff.Tag = 306
	tagArtist             tiff.Tag = 315
	tagTileWidth          tiff.Tag = 322
	tagTileLength         tiff.Tag = 323
	tagTileOffsets        tiff.Tag = 324
	tagTileByteCounts     tiff.Tag = 325
	tagSubIFDs            tiff.Tag = 330
	tagXMP                tiff.Tag = 700
	tagCFARepeatPattern   tiff.Tag = 33421
	tagCFAPattern         tiff.Tag = 33422
	tagCopyright          tiff.Tag = 33432
	tagExifIFD            tiff.Tag = 34665
	tagGPSInfo            tiff.Tag = 34853
	tagDNGVersion         tiff.Tag = 50706
	tagDNGBackwardVersion tiff.Tag = 50707
	tagUniqueCameraModel  tiff.Tag = 50708
	tagCFAPlaneColor      tiff.Tag = 50710
	tagCFALayout          tiff.Tag = 50711
	tagBlackLevelRepeat   tiff.Tag = 50713
	tagBlackLevel         tiff.Tag = 50714
	tagWhiteLevel         tiff.Tag = 50717
	tagDefaultScale       tiff.Tag = 50718
	tagDefaultCropOrigin  tiff.Tag = 50719
	tagDefaultCropSize    tiff.Tag = 50720
	tagColorMatrix1       tiff.Tag = 50721
	tagColorMatrix2       tiff.Tag = 50722
	tagCalibIlluminant1   tiff.Tag = 50778
	tagCalibIlluminant2   tiff.Tag = 50779
	tagBestQualityScale   tiff.Tag = 50780
	tagOriginalFileName   tiff.Tag = 50827
	tagOriginalFileData   tiff.Tag = 50828
	tagActiveArea         tiff.Tag = 50829
	tagMaskedAreas        tiff.Tag = 50830
	tagOriginalFileDigest tiff.Tag = 50973
	tagPreviewColorSpace  tiff.Tag = 50970

	tagGPSLatitudeRef  tiff.Tag = 1
	tagGPSLatitude     tiff.Tag = 2
	tagGPSLongitudeRef tiff.Tag = 3
	tagGPSLongitude    tiff.Tag = 4
	tagGPSAltitudeRef  tiff.Tag = 5
	tagGPSAltitude     tiff.Tag = 6
	tagGPSTimeStamp    tiff.Tag = 7
	tagGPSDateStamp    tiff.Tag = 29
)

// Photometric interpretation values DNG uses beyond the baseline TIFF set.
const (
	photometricBlackIsZero = 1
	photometricYCbCr       = 6
	photometricCFA         = 32803
	photometricLinearRaw   = 34892
)

// Compression code values.
const (
	compressionNone        = 1
	compressionModernJPEG  = 7 // DNG's lossless-JPEG-encoded raw tiles/strips
	compressionOldJPEGBase = 6
)
