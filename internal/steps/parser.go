// Package steps splits a generated instruction blob into numbered steps.
package steps

import (
	"errors"
	"strings"
)

// ErrNoSteps is reported when the input is blank or no line matches the
// numbering pattern.
var ErrNoSteps = errors.New("no numbered steps found")

// Parse splits instruction text into ordered step strings.
//
// A line starts a new step when, after trimming, its first character is a
// digit and a '.' appears within the first four characters ("12. " yes,
// "This is 1 of 2" no). Following lines are space-joined onto the current
// step until the next numbering line. The check is purely lexical: numbers
// are not required to be sequential, and step numbers assigned downstream
// come from parse order, not from the numeral text.
func Parse(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSteps
	}

	var steps []string
	current := ""
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case startsStep(line):
			if current != "" {
				steps = append(steps, strings.TrimSpace(current))
			}
			current = line
		case current != "" && line != "":
			current += " " + line
		}
	}
	if current != "" {
		steps = append(steps, strings.TrimSpace(current))
	}

	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	return steps, nil
}

func startsStep(line string) bool {
	if line == "" || line[0] < '0' || line[0] > '9' {
		return false
	}
	head := line
	if len(head) > 4 {
		head = head[:4]
	}
	return strings.Contains(head, ".")
}
