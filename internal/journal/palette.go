package journal

var tagColors = [...]string{
	"#6366f1", // indigo
	"#8b5cf6", // violet
	"#a855f7", // purple
	"#d946ef", // fuchsia
	"#ec4899", // pink
	"#f43f5e", // rose
	"#ef4444", // red
	"#f97316", // orange
	"#f59e0b", // amber
	"#eab308", // yellow
	"#84cc16", // lime
	"#22c55e", // green
	"#10b981", // emerald
	"#14b8a6", // teal
	"#06b6d4", // cyan
	"#0ea5e9", // sky
	"#3b82f6", // blue
	"#6d28d9", // deep violet
	"#be185d", // deep pink
	"#0d9488", // deep teal
}

// TagColorFor picks the palette color for the tag created after existingCount others.
func TagColorFor(existingCount int) string {
	if existingCount < 0 {
		existingCount = 0
	}
	return tagColors[existingCount%len(tagColors)]
}

// TagColors returns the full palette.
func TagColors() []string {
	return append([]string(nil), tagColors[:]...)
}
