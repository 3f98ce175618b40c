package llm

import (
	"strings"
	"unicode"

	"github.com/randalmurphal/promptctx/provider"
)

// ByWord regroups a fragment stream so text is released only at word
// boundaries. Fragments accumulate until one contains whitespace or
// punctuation, then the whole buffer is sent. The remainder is flushed before
// the final chunk, which is forwarded unchanged.
func ByWord(in <-chan provider.StreamChunk) <-chan provider.StreamChunk {
	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)

		var buf strings.Builder
		flush := func() {
			if buf.Len() > 0 {
				out <- provider.StreamChunk{Content: buf.String()}
				buf.Reset()
			}
		}

		for chunk := range in {
			if chunk.Done || chunk.Error != nil {
				buf.WriteString(chunk.Content)
				flush()
				chunk.Content = ""
				out <- chunk
				continue
			}
			buf.WriteString(chunk.Content)
			if strings.IndexFunc(chunk.Content, isBoundary) >= 0 {
				flush()
			}
		}
		flush()
	}()
	return out
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}
