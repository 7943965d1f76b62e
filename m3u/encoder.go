package m3u

import (
	"fmt"
	"io"
)

// Encode writes items back out as playlist text. The output parses back into
// equivalent items, modulo tags the parser does not keep.
func Encode(w io.Writer, items []Item) error {
	if _, err := fmt.Fprintf(w, "%s\n", directiveHeader); err != nil {
		return err
	}
	for i := range items {
		if err := encodeItem(w, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func encodeItem(w io.Writer, item *Item) error {
	if _, err := fmt.Fprintf(w, "%s:-1", directiveEntry); err != nil {
		return err
	}
	if item.Logo != nil {
		if _, err := fmt.Fprintf(w, " %s%q", tagLogo, item.Logo); err != nil {
			return err
		}
	}
	if item.Group != "" {
		if _, err := fmt.Fprintf(w, " %s%q", tagGroupTitle, item.Group); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, ",%s\n%s\n", item.Title, item.URL); err != nil {
		return err
	}
	return nil
}
