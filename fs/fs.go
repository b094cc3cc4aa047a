package appfs

import "embed"

// FS holds the files shipped inside the binaries.
//
//go:embed assets migrations templates
var FS embed.FS
