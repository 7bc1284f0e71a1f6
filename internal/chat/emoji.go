package chat

import (
	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"
)

// PickerEmojis is the composer's emoji palette.
var PickerEmojis = []string{
	"😀", "😁", "😂", "😅", "😍", "😘", "😎", "😭", "👍", "🙏", "🔥", "❤️", "🎉", "✅", "⭐",
}

var ErrNotEmoji = errors.New("not a single emoji")

// ValidateEmoji accepts exactly one emoji and nothing else. Variation
// selectors such as the one in "❤️" belong to the emoji.
func ValidateEmoji(e string) error {
	if e == "" || gomoji.RemoveEmojis(e) != "" || len(gomoji.CollectAll(e)) != 1 {
		return ErrNotEmoji
	}
	return nil
}

// AppendEmoji adds e to the end of the composer text.
func AppendEmoji(text, e string) (string, error) {
	if err := ValidateEmoji(e); err != nil {
		return text, err
	}
	return text + e, nil
}
