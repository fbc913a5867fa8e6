package tool

import "github.com/sahilm/fuzzy"

// Suggest returns up to three known names closest to an unknown one.
func Suggest(name string, known []string) []string {
	if name == "" || len(known) == 0 {
		return nil
	}
	matches := fuzzy.Find(name, known)
	var out []string
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) == 3 {
			break
		}
	}
	return out
}
