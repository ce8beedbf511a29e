package resources

import "embed"

//go:embed migrations i18n rules.yml
var FS embed.FS
