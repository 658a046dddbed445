package identity

// avatarPalette is the fixed product palette for default avatar colors.
// Stable across releases: colors are recomputed from ids instead of being
// persisted redundantly, so the mapping must never change.
var avatarPalette = []string{
	"#FFD37D",
	"#A8D0FF",
	"#FFC8DD",
	"#B5EAEA",
	"#BDB2FF",
	"#FFABAB",
	"#CAF0F8",
}

// ColorFor maps a key to a palette color by summing its byte values modulo
// the palette size. Pure and deterministic, so assignment at creation time
// and later recomputation always agree.
func ColorFor(key string) string {
	var sum int
	for i := 0; i < len(key); i++ {
		sum += int(key[i])
	}
	return avatarPalette[sum%len(avatarPalette)]
}

// PaletteSize exposes the palette length for tests and docs.
func PaletteSize() int {
	return len(avatarPalette)
}
