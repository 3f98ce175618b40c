package truncate

import "github.com/randalmurphal/promptctx/tokens"

// truncateEnd keeps a prefix of text. The id window starts at the bounded
// encoding and shrinks until the decoded text re-tokenizes within the limit.
func (t *Truncator) truncateEnd(text string, target, maxTokens int) (string, error) {
	ids, err := t.tok.Encode(text, target)
	if err != nil {
		return "", err
	}
	for n := len(ids); n > 0; n-- {
		prefix, err := t.tok.Decode(ids[:n])
		if err != nil {
			return "", err
		}
		if ok, err := t.fits(prefix+t.marker, maxTokens); err != nil || ok {
			return prefix + t.marker, err
		}
	}
	return "", nil
}

// truncateStart keeps a suffix of the token sequence.
func (t *Truncator) truncateStart(ids []int, target, maxTokens int) (string, error) {
	for n := min(target, len(ids)); n > 0; n-- {
		suffix, err := t.tok.Decode(ids[len(ids)-n:])
		if err != nil {
			return "", err
		}
		if ok, err := t.fits(t.marker+suffix, maxTokens); err != nil || ok {
			return t.marker + suffix, err
		}
	}
	return "", nil
}

// truncateMiddle keeps a head and a tail, giving the head the odd token.
func (t *Truncator) truncateMiddle(ids []int, target, maxTokens int) (string, error) {
	for n := min(target, len(ids)); n > 0; n-- {
		headLen := (n + 1) / 2
		tailLen := n - headLen

		head, err := t.tok.Decode(ids[:headLen])
		if err != nil {
			return "", err
		}
		var tail string
		if tailLen > 0 {
			if tail, err = t.tok.Decode(ids[len(ids)-tailLen:]); err != nil {
				return "", err
			}
		}

		candidate := head + t.marker + tail
		if ok, err := t.fits(candidate, maxTokens); err != nil || ok {
			return candidate, err
		}
	}
	return "", nil
}

func (t *Truncator) fits(text string, maxTokens int) (bool, error) {
	return tokens.FitsInLimit(t.tok, text, maxTokens)
}
