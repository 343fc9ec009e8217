package remote

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"sitebuilder/pkg/faults"
)

// Quote returns arg quoted for bash. Arguments that need no quoting come back unchanged.
func Quote(arg string) (string, error) {
	q, err := syntax.Quote(arg, syntax.LangBash)
	if err != nil {
		return "", faults.Wrap(faults.TypeInternal, err, "cannot quote shell argument")
	}
	return q, nil
}

// Command joins name and args into one bash command line, quoting every argument.
//
//	Command("wp", "post", "create", "--post_title=Joe's Pizza")
func Command(name string, args ...string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		q, err := Quote(a)
		if err != nil {
			return "", err
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " "), nil
}
