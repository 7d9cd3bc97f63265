package config

// Operation names, shared by per-operation config, throttling, caching and
// the job queue.
const (
	OpMerge         = "merge"
	OpSplit         = "split"
	OpCompress      = "compress"
	OpInfo          = "info"
	OpToImages      = "convert-to-images"
	OpToText        = "convert-to-text"
	OpSplitByRanges = "split-by-ranges"
	OpImagesToPDF   = "images-to-pdf"
)

// Operations lists every operation name the service understands.
var Operations = []string{
	OpMerge,
	OpSplit,
	OpCompress,
	OpInfo,
	OpToImages,
	OpToText,
	OpSplitByRanges,
	OpImagesToPDF,
}
